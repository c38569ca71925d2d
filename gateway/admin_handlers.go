package gateway

import (
	"net/http"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/support"
	"github.com/example/storefront/pkg/validation"
	"github.com/gin-gonic/gin"
)

type supportStatusRequest struct {
	Status models.SupportStatus `json:"status" validate:"required"`
}

type templateRequest struct {
	Subject string `json:"subject" validate:"required,max=300"`
	Body    string `json:"body" validate:"required"`
}

type backupRequest struct {
	Note string `json:"note" validate:"max=255"`
}

type retentionRequest struct {
	KeepLast   int `json:"keepLast" validate:"min=0"`
	MaxAgeDays int `json:"maxAgeDays" validate:"min=0"`
}

// createSupportMessage godoc
// @Summary  Contact the shop
// @Tags     support
// @Accept   json
// @Produce  json
// @Success  201 {object} envelope
// @Failure  429 {object} envelope
// @Router   /api/support/messages [post]
func (g *Gateway) createSupportMessage(c *gin.Context) {
	var in support.MessageInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	var userID *string
	if p := principal(c); p != nil {
		userID = &p.UserID
	}
	msg, err := g.svc.Support.Create(c.Request.Context(), in, userID)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, msg)
}

func (g *Gateway) listSupportMessages(c *gin.Context) {
	f := support.Filter{
		Status:   models.SupportStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	msgs, total, err := g.svc.Support.List(c.Request.Context(), f)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, page{Items: msgs, Total: total, Page: f.Page, PageSize: f.PageSize})
}

func (g *Gateway) updateSupportStatus(c *gin.Context) {
	var req supportStatusRequest
	if err := validation.BindAndValidate(c, &req, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	msg, err := g.svc.Support.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, msg)
}

func (g *Gateway) listTemplates(c *gin.Context) {
	tpls, err := g.svc.Templates.List(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, tpls)
}

func (g *Gateway) getTemplate(c *gin.Context) {
	tpl, err := g.svc.Templates.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, tpl)
}

func (g *Gateway) saveTemplate(c *gin.Context) {
	var req templateRequest
	if err := validation.BindAndValidate(c, &req, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	tpl, err := g.svc.Templates.Save(c.Request.Context(), c.Param("key"), req.Subject, req.Body)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, tpl)
}

func (g *Gateway) resetTemplate(c *gin.Context) {
	if err := g.svc.Templates.Reset(c.Request.Context(), c.Param("key")); err != nil {
		g.fail(c, err)
		return
	}
	g.getTemplate(c)
}

func (g *Gateway) emailLog(c *gin.Context) {
	rows, err := notify.List(c.Request.Context(), g.svc.DB, c.Query("status"), queryInt(c, "limit", 50))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, rows)
}

// drainEmails godoc
// @Summary  Deliver pending notifications now
// @Tags     worker
// @Produce  json
// @Param    X-Worker-Token header string true "worker token"
// @Success  200 {object} envelope
// @Router   /api/worker/emails/drain [post]
func (g *Gateway) drainEmails(c *gin.Context) {
	res, err := g.svc.Drainer.DrainNow(time.Minute)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (g *Gateway) listBackups(c *gin.Context) {
	list, err := g.svc.Backups.List(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (g *Gateway) createBackup(c *gin.Context) {
	var req backupRequest
	if c.Request.ContentLength > 0 {
		if err := validation.BindAndValidate(c, &req, g.validate); err != nil {
			g.fail(c, err)
			return
		}
	}
	b, err := g.svc.Backups.Create(c.Request.Context(), req.Note)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, b)
}

func (g *Gateway) restoreBackup(c *gin.Context) {
	counts, err := g.svc.Backups.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("id"), "rows": counts})
}

func (g *Gateway) deleteBackup(c *gin.Context) {
	if err := g.svc.Backups.Delete(c.Request.Context(), c.Param("id")); err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

func (g *Gateway) backupRetention(c *gin.Context) {
	var req retentionRequest
	if err := validation.BindAndValidate(c, &req, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	removed, err := g.svc.Backups.Retention(c.Request.Context(), req.KeepLast, req.MaxAgeDays)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"removed": removed})
}

func (g *Gateway) latestHealth(c *gin.Context) {
	report, err := g.svc.Health.Latest(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}

func (g *Gateway) runHealth(c *gin.Context) {
	report, err := g.svc.Health.Run(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, report)
}
