package gateway

import (
	"net/http"

	"github.com/example/storefront/pkg/catalog"
	"github.com/example/storefront/pkg/validation"
	"github.com/gin-gonic/gin"
)

// listProducts godoc
// @Summary  Active products
// @Tags     catalog
// @Produce  json
// @Param    search   query string false "name or SKU"
// @Param    page     query int    false "page number"
// @Param    pageSize query int    false "page size"
// @Success  200 {object} envelope
// @Router   /api/products [get]
func (g *Gateway) listProducts(c *gin.Context) {
	g.products(c, true)
}

func (g *Gateway) adminListProducts(c *gin.Context) {
	g.products(c, false)
}

func (g *Gateway) products(c *gin.Context, activeOnly bool) {
	f := catalog.ProductFilter{
		Search:     c.Query("search"),
		ActiveOnly: activeOnly,
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "pageSize", 24),
	}
	items, total, err := g.svc.Catalog.ListProducts(c.Request.Context(), f)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize})
}

// getProduct serves inactive products to admins only.
func (g *Gateway) getProduct(c *gin.Context) {
	p, err := g.svc.Catalog.GetProduct(c.Request.Context(), c.Param("id"), !principal(c).IsAdmin())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (g *Gateway) createProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	p, err := g.svc.Catalog.CreateProduct(c.Request.Context(), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

func (g *Gateway) updateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	p, err := g.svc.Catalog.UpdateProduct(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (g *Gateway) deleteProduct(c *gin.Context) {
	if err := g.svc.Catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

func (g *Gateway) addVariant(c *gin.Context) {
	var in catalog.VariantInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	v, err := g.svc.Catalog.AddVariant(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, v)
}

func (g *Gateway) updateVariant(c *gin.Context) {
	var in catalog.VariantInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	v, err := g.svc.Catalog.UpdateVariant(c.Request.Context(), c.Param("id"), c.Param("variantId"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

func (g *Gateway) deleteVariant(c *gin.Context) {
	if err := g.svc.Catalog.DeleteVariant(c.Request.Context(), c.Param("id"), c.Param("variantId")); err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("variantId")})
}

func (g *Gateway) listOffers(c *gin.Context) {
	offers, err := g.svc.Catalog.ListOffers(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, offers)
}

func (g *Gateway) getOffer(c *gin.Context) {
	o, err := g.svc.Catalog.GetOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

func (g *Gateway) createOffer(c *gin.Context) {
	var in catalog.OfferInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	o, err := g.svc.Catalog.CreateOffer(c.Request.Context(), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, o)
}

func (g *Gateway) updateOffer(c *gin.Context) {
	var in catalog.OfferInput
	if err := validation.BindAndValidate(c, &in, g.validate); err != nil {
		g.fail(c, err)
		return
	}
	o, err := g.svc.Catalog.UpdateOffer(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

func (g *Gateway) deleteOffer(c *gin.Context) {
	if err := g.svc.Catalog.DeleteOffer(c.Request.Context(), c.Param("id")); err != nil {
		g.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("id")})
}
