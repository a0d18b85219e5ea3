// Command backupmerge is the CLI front end over the merge engine
// (internal/merge) and the REST API server (internal/api): the "caller
// hands inputs in, engine returns outputs or an error" edge the engine
// itself has no dependency on (§9's cyclic-ownership teardown).
package main

func main() {
	Execute()
}
