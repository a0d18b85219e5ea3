package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/backupmerge/backupmerge/internal/mergeerr"
	mergeengine "github.com/backupmerge/backupmerge/internal/merge"
)

// healthHandler reports liveness; exempt from API key auth (see
// APIKeyAuthMiddleware).
func (s *Server) healthHandler(c *gin.Context) {
	SuccessResponse(c, "ok", gin.H{"status": "healthy"})
}

// mergeRequest is the multipart form shape for POST /api/v1/merge: two or
// more "sources" file parts, plus optional include-flag booleans mirroring
// §6.4's data-type toggles.
type mergeRequest struct {
	IncludeNotes       bool `form:"include_notes"`
	IncludeBookmarks   bool `form:"include_bookmarks"`
	IncludeHighlights  bool `form:"include_highlights"`
	IncludeTags        bool `form:"include_tags"`
	IncludeInputFields bool `form:"include_inputfields"`
	IncludePlaylists   bool `form:"include_playlists"`
}

// mergeHandler accepts a multipart upload of backup archives under the
// "sources" field name, runs the merge engine, and streams the resulting
// archive back as the response body.
func (s *Server) mergeHandler(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		BadRequestError(c, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	files := form.File["sources"]
	if len(files) < 2 {
		BadRequestError(c, "at least two files are required under the 'sources' field")
		return
	}

	var req mergeRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequestError(c, fmt.Sprintf("invalid form fields: %v", err))
		return
	}

	sources := make([][]byte, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			BadRequestError(c, fmt.Sprintf("failed to open upload %s: %v", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			BadRequestError(c, fmt.Sprintf("failed to read upload %s: %v", fh.Filename, err))
			return
		}
		sources[i] = data
	}

	cfg := mergeengine.Config{
		Include: mergeengine.IncludeFlags{
			Notes:       req.IncludeNotes,
			Bookmarks:   req.IncludeBookmarks,
			Highlights:  req.IncludeHighlights,
			Tags:        req.IncludeTags,
			InputFields: req.IncludeInputFields,
			Playlists:   req.IncludePlaylists,
		},
		SizeLimitBytes: s.config.Merge.SizeLimitBytes,
	}
	if c.Query("include_defaults") == "true" || !anyIncludeSet(req) {
		cfg.Include = mergeengine.DefaultIncludeFlags()
	}

	result, err := mergeengine.Run(c.Request.Context(), sources, cfg)
	if err != nil {
		writeMergeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	c.Data(http.StatusOK, "application/octet-stream", result.Archive)
}

// validateHandler runs the merge and returns only the validation report as
// JSON, instead of streaming the archive — useful for a dry-run preview.
func (s *Server) validateHandler(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		BadRequestError(c, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	files := form.File["sources"]
	if len(files) < 2 {
		BadRequestError(c, "at least two files are required under the 'sources' field")
		return
	}

	sources := make([][]byte, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			BadRequestError(c, fmt.Sprintf("failed to open upload %s: %v", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			BadRequestError(c, fmt.Sprintf("failed to read upload %s: %v", fh.Filename, err))
			return
		}
		sources[i] = data
	}

	result, err := mergeengine.Run(c.Request.Context(), sources, mergeengine.Config{
		Include:        mergeengine.DefaultIncludeFlags(),
		SizeLimitBytes: s.config.Merge.SizeLimitBytes,
	})
	if err != nil {
		writeMergeError(c, err)
		return
	}

	SuccessResponse(c, "merge validated", result.Validation)
}

func anyIncludeSet(r mergeRequest) bool {
	return r.IncludeNotes || r.IncludeBookmarks || r.IncludeHighlights || r.IncludeTags || r.IncludeInputFields || r.IncludePlaylists
}

// writeMergeError translates the engine's tagged error taxonomy (§7) into
// an HTTP status: invalid input and oversized input are client errors,
// a merge conflict is 422, cancellation is a client-initiated abort, and
// everything else is a server fault.
func writeMergeError(c *gin.Context, err error) {
	tagged, ok := mergeerr.As(err)
	if !ok {
		InternalError(c, err.Error())
		return
	}

	switch tagged.Code {
	case mergeerr.InputInvalid, mergeerr.BadContainer, mergeerr.BadManifest, mergeerr.BadDatabase:
		BadRequestError(c, tagged.Error())
	case mergeerr.InputTooLarge:
		PayloadTooLargeError(c, tagged.Error())
	case mergeerr.MergeConflict:
		UnprocessableEntityError(c, tagged.Error())
	case mergeerr.Cancelled:
		ErrorResponse(c, http.StatusRequestTimeout, tagged.Error())
	default:
		InternalError(c, tagged.Error())
	}
}
