package gateway

import (
	"net/http"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type addItemRequest struct {
	ProductID string          `json:"productId" validate:"required,max=36"`
	VariantID *string         `json:"variantId" validate:"omitempty,max=36"`
	Quantity  int             `json:"quantity" validate:"omitempty,min=1,max=999"`
	Mode      models.CartMode `json:"mode" validate:"omitempty,oneof=normal buy_now"`
}

type updateItemRequest struct {
	ItemID   string `json:"itemId" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=0,max=999"`
}

type discountRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

func cartMode(c *gin.Context) models.CartMode {
	if models.CartMode(c.Query("mode")) == models.CartModeBuyNow {
		return models.CartModeBuyNow
	}
	return models.CartModeNormal
}

func (g *Gateway) cartCookie(mode models.CartMode) string {
	if mode == models.CartModeBuyNow {
		return g.config.Auth.BuyNowCookie
	}
	return g.config.Auth.CartCookie
}

// cartIdentity picks the caller's cart. A signed-in user who still holds a
// guest cart cookie gets that cart merged into theirs first.
func (g *Gateway) cartIdentity(c *gin.Context, mode models.CartMode) cart.Identity {
	token, _ := c.Cookie(g.cartCookie(mode))
	p := principal(c)
	if p == nil {
		return cart.Identity{Token: token, Mode: mode}
	}
	if token != "" && mode == models.CartModeNormal {
		if _, err := g.svc.Carts.Merge(c.Request.Context(), token, p.UserID); err != nil {
			g.logger.Warn("failed to merge guest cart", zap.String("user_id", p.UserID), zap.Error(err))
		} else {
			g.setCookie(c, g.cartCookie(mode), "", -1)
		}
	}
	return cart.Identity{UserID: p.UserID, Mode: mode}
}

func (g *Gateway) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", g.config.Auth.CookieSecure, true)
}

// respondCart renders the cart and keeps the guest cookie pointing at it.
func (g *Gateway) respondCart(c *gin.Context, id cart.Identity, result *models.Cart, err error) {
	if err != nil {
		g.fail(c, err)
		return
	}
	if id.UserID == "" && id.Token != result.ID {
		g.setCookie(c, g.cartCookie(result.Mode), result.ID, g.config.Auth.CartCookieMaxAge)
	}
	ok(c, http.StatusOK, result)
}

// getCart godoc
// @Summary  Current cart
// @Tags     cart
// @Produce  json
// @Param    mode query string false "normal or buy_now"
// @Success  200 {object} envelope
// @Router   /api/cart [get]
func (g *Gateway) getCart(c *gin.Context) {
	id := g.cartIdentity(c, cartMode(c))
	result, err := g.svc.Carts.Fetch(c.Request.Context(), id)
	g.respondCart(c, id, result, err)
}

// addToCart godoc
// @Summary  Add a product to the cart
// @Tags     cart
// @Accept   json
// @Produce  json
// @Success  200 {object} envelope
// @Failure  404 {object} envelope
// @Failure  409 {object} envelope
// @Router   /api/cart/items [post]
func (g *Gateway) addToCart(c *gin.Context) {
	var req addItemRequest
	if err := validation.BindAndValidate(c, &req, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = cartMode(c)
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	id := g.cartIdentity(c, mode)
	result, err := g.svc.Carts.AddItem(c.Request.Context(), id, cart.AddItemInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	})
	g.respondCart(c, id, result, err)
}

func (g *Gateway) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if err := validation.BindAndValidate(c, &req, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	id := g.cartIdentity(c, cartMode(c))
	result, err := g.svc.Carts.UpdateQuantity(c.Request.Context(), id, req.ItemID, req.Quantity)
	g.respondCart(c, id, result, err)
}

func (g *Gateway) removeCartItem(c *gin.Context) {
	itemID := c.Query("itemId")
	if itemID == "" {
		var req struct {
			ItemID string `json:"itemId"`
		}
		_ = c.ShouldBindJSON(&req)
		itemID = req.ItemID
	}
	if itemID == "" {
		g.fail(c, apperr.Validation("itemId is required", map[string]string{"itemId": "required"}))
		return
	}
	id := g.cartIdentity(c, cartMode(c))
	result, err := g.svc.Carts.RemoveItem(c.Request.Context(), id, itemID)
	g.respondCart(c, id, result, err)
}

// applyDiscount godoc
// @Summary  Apply a discount code
// @Tags     cart
// @Accept   json
// @Produce  json
// @Success  200 {object} envelope
// @Failure  400 {object} envelope "INVALID_CODE or EXPIRED_CODE"
// @Router   /api/cart/discount [post]
func (g *Gateway) applyDiscount(c *gin.Context) {
	var req discountRequest
	if err := validation.BindAndValidate(c, &req, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	id := g.cartIdentity(c, cartMode(c))
	result, err := g.svc.Carts.ApplyDiscount(c.Request.Context(), id, req.Code)
	g.respondCart(c, id, result, err)
}

func (g *Gateway) removeDiscount(c *gin.Context) {
	id := g.cartIdentity(c, cartMode(c))
	result, err := g.svc.Carts.RemoveDiscount(c.Request.Context(), id)
	g.respondCart(c, id, result, err)
}

func (g *Gateway) clearCart(c *gin.Context) {
	id := g.cartIdentity(c, cartMode(c))
	result, err := g.svc.Carts.Clear(c.Request.Context(), id)
	g.respondCart(c, id, result, err)
}
