package gateway

import (
	"mime/multipart"
	"net/http"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/upload"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxUploadFiles = 10

// uploadImage godoc
// @Summary  Upload images
// @Description Every image is re-encoded as JPEG and stored under the requested folder.
// @Tags     uploads
// @Accept   multipart/form-data
// @Produce  json
// @Param    files[] formData file   true  "images"
// @Param    folder  formData string false "products, variants, categories, avatars or misc"
// @Success  201 {object} envelope
// @Failure  400 {object} envelope "UPLOAD_FAILED"
// @Router   /api/uploads [post]
func (g *Gateway) uploadImage(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		g.fail(c, apperr.Validation("multipart form expected", map[string]string{"files[]": "required"}))
		return
	}
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		g.fail(c, apperr.Validation("at least one file is required", map[string]string{"files[]": "required"}))
		return
	}
	if len(files) > maxUploadFiles {
		g.fail(c, apperr.Validation("too many files", map[string]string{"files[]": "max=10"}))
		return
	}

	folder := c.DefaultPostForm("folder", "misc")
	results := make([]*upload.Result, 0, len(files))
	for _, fh := range files {
		res, err := g.processUpload(c, fh, folder)
		if err != nil {
			g.discardUploads(c, results)
			g.fail(c, err)
			return
		}
		results = append(results, res)
	}
	ok(c, http.StatusCreated, results)
}

func (g *Gateway) processUpload(c *gin.Context, fh *multipart.FileHeader, folder string) (*upload.Result, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeUploadFailed, "could not read upload")
	}
	defer f.Close()
	return g.svc.Uploads.Process(c.Request.Context(), f, folder)
}

// discardUploads removes the files of a request that failed part way.
func (g *Gateway) discardUploads(c *gin.Context, results []*upload.Result) {
	for _, res := range results {
		if err := g.svc.Uploads.Store().Delete(c.Request.Context(), res.Key); err != nil {
			g.logger.Warn("failed to discard upload", zap.String("key", res.Key), zap.Error(err))
		}
	}
}
