package gateway

import (
	"net/http"

	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/validation"
	"github.com/gin-gonic/gin"
)

func (g *Gateway) shippingMethods(c *gin.Context) {
	ok(c, http.StatusOK, g.svc.Checkout.ShippingMethods())
}

// checkout godoc
// @Summary  Place an order from the cart
// @Tags     checkout
// @Accept   json
// @Produce  json
// @Success  201 {object} envelope
// @Failure  400 {object} envelope "VALIDATION_FAILED or EMPTY_CART"
// @Failure  409 {object} envelope "STOCK_CONFLICT, CART_CHANGED or PAYMENT_UNAVAILABLE"
// @Router   /api/checkout [post]
func (g *Gateway) checkout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, invalidBody(err))
		return
	}
	id := g.cartIdentity(c, cartMode(c))
	placed, err := g.svc.Checkout.Checkout(c.Request.Context(), id, req)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, placed)
}

func (g *Gateway) myOrders(c *gin.Context) {
	f := order.ListFilter{
		UserID:   principal(c).UserID,
		Status:   models.OrderStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	orders, total, err := g.svc.Orders.List(c.Request.Context(), f)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, page{Items: orders, Total: total, Page: f.Page, PageSize: f.PageSize})
}

func viewer(c *gin.Context) order.Viewer {
	if p := principal(c); p != nil {
		return order.Viewer{UserID: p.UserID}
	}
	return order.Viewer{}
}

// lookupOrder godoc
// @Summary  Look up an order
// @Description Signed-in users may use their order number or id; guests need the order id.
// @Tags     orders
// @Produce  json
// @Param    id path string true "order id or number"
// @Success  200 {object} envelope
// @Failure  404 {object} envelope
// @Router   /api/orders/{id} [get]
func (g *Gateway) lookupOrder(c *gin.Context) {
	o, err := g.svc.Orders.Lookup(c.Request.Context(), viewer(c), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

func (g *Gateway) orderTracking(c *gin.Context) {
	shipments, err := g.svc.Orders.Tracking(c.Request.Context(), viewer(c), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, shipments)
}

func (g *Gateway) adminListOrders(c *gin.Context) {
	f := order.ListFilter{
		UserID:   c.Query("userId"),
		Status:   models.OrderStatus(c.Query("status")),
		Search:   c.Query("search"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	orders, total, err := g.svc.Orders.List(c.Request.Context(), f)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, page{Items: orders, Total: total, Page: f.Page, PageSize: f.PageSize})
}

func (g *Gateway) adminGetOrder(c *gin.Context) {
	o, err := g.svc.Orders.GetDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

func (g *Gateway) adminUpdateOrder(c *gin.Context) {
	var in order.UpdateInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	o, err := g.svc.Orders.Update(c.Request.Context(), c.Param("id"), in, actor(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

func (g *Gateway) adminRemoveOrder(c *gin.Context) {
	if err := g.svc.Orders.Remove(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

func (g *Gateway) adminOrderAudit(c *gin.Context) {
	entries, err := g.svc.Orders.AuditTrail(c.Request.Context(), c.Param("id"), int64(queryInt(c, "limit", 50)))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, entries)
}

func (g *Gateway) addShipment(c *gin.Context) {
	var in order.ShipmentInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	s, err := g.svc.Orders.AddShipment(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, s)
}

func (g *Gateway) updateShipment(c *gin.Context) {
	var in order.ShipmentPatch
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	s, err := g.svc.Orders.UpdateShipment(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

func (g *Gateway) appendTracking(c *gin.Context) {
	var in order.TrackingInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	u, err := g.svc.Orders.AppendTracking(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// actor names the admin in audit entries.
func actor(c *gin.Context) string {
	if p := principal(c); p != nil {
		if p.Email != "" {
			return p.Email
		}
		return p.UserID
	}
	return "admin"
}
