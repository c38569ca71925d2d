package gateway

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/backup"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/catalog"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/health"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/notify"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/ratelimit"
	"github.com/example/storefront/pkg/repository/repotest"
	"github.com/example/storefront/pkg/support"
	"github.com/example/storefront/pkg/upload"
	"github.com/example/storefront/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeDrainer struct {
	calls int
}

func (f *fakeDrainer) DrainNow(time.Duration) (notify.Result, error) {
	f.calls++
	return notify.Result{Claimed: 2, Sent: 2}, nil
}

type harness struct {
	t        *testing.T
	db       *gorm.DB
	handler  http.Handler
	verifier *auth.Verifier
	drainer  *fakeDrainer
	uploads  string
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := repotest.NewDB(t)
	logger := zap.NewNop()
	uploads := t.TempDir()

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Auth: config.AuthConfig{
			JWTSecret:        "test-secret",
			SessionCookie:    "session",
			CartCookie:       "cart_id",
			BuyNowCookie:     "buy_now_cart_id",
			CartCookieMaxAge: 3600,
		},
		Shop: config.ShopConfig{
			Currency:         "USD",
			TaxRate:          "0",
			SupportRateLimit: 2,
			ShippingMethods: []config.ShippingMethodConfig{
				{ID: "standard", Name: "Standard", Carrier: "Aramex", Price: "5.00", EstimatedDays: 5},
			},
		},
		Uploads: config.UploadsConfig{Root: uploads, PublicPrefix: "/uploads", Quality: 82, MaxBytes: 1 << 20},
		Worker:  config.WorkerConfig{Token: "worker-token"},
	}

	carts := cart.NewService(db, &cfg.Shop, logger)
	orders := order.NewService(db, carts, nil, &cfg.Shop, logger)
	validate := validation.New()
	healthSvc := health.NewService(db, logger)
	healthSvc.Register(health.Database(db))
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	drainer := &fakeDrainer{}

	gw := NewGateway(cfg, Services{
		DB:        db,
		Carts:     carts,
		Checkout:  checkout.NewService(orders, order.MethodsFromConfig(cfg.Shop.ShippingMethods), validate, checkout.Options{}),
		Orders:    orders,
		Catalog:   catalog.NewService(db, logger),
		Support:   support.NewService(db, logger),
		Backups:   backup.NewService(db, t.TempDir(), nil, logger),
		Health:    healthSvc,
		Uploads:   upload.NewProcessor(upload.NewLocalStore(uploads, "/uploads"), &cfg.Uploads, logger),
		Templates: notify.NewTemplates(db),
		Drainer:   drainer,
		Limiter:   ratelimit.NewMemoryLimiter(),
		Verifier:  verifier,
	}, logger)
	gw.SetupRoutes()

	return &harness{t: t, db: db, handler: gw.Handler(), verifier: verifier, drainer: drainer, uploads: uploads}
}

func (h *harness) token(userID, role string) string {
	h.t.Helper()
	tok, err := h.verifier.Issue(auth.Principal{UserID: userID, Email: userID + "@example.com", Role: role}, time.Hour)
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(req *http.Request) (*httptest.ResponseRecorder, response) {
	h.t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	var body response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func jsonRequest(method, path string, body interface{}, mods ...func(*http.Request)) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mods {
		m(req)
	}
	return req
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func checkoutBody() map[string]interface{} {
	return map[string]interface{}{
		"email": "ada@example.com",
		"name":  "Ada Lovelace",
		"address": map[string]string{
			"firstName":  "Ada",
			"lastName":   "Lovelace",
			"line1":      "12 Analytical St",
			"city":       "London",
			"postalCode": "N1 9GU",
			"country":    "GB",
			"phone":      "+441234567",
		},
		"shippingMethod": "standard",
		"payment":        map[string]string{"method": "cash_on_delivery"},
	}
}

func TestLivenessEnvelope(t *testing.T) {
	h := newHarness(t)
	rec, body := h.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.JSONEq(t, `{"status":"ok"}`, string(body.Data))
	assert.Nil(t, body.Error)
}

func TestGuestCartKeepsCookie(t *testing.T) {
	h := newHarness(t)
	p := repotest.SeedProduct(t, h.db, "Mug", "19.99", 5)

	rec, body := h.do(jsonRequest(http.MethodPost, "/api/cart/items", map[string]interface{}{"productId": p.ID, "quantity": 3}))
	require.Equal(t, http.StatusOK, rec.Code)
	cartCookie := cookie(rec, "cart_id")
	require.NotNil(t, cartCookie)
	assert.True(t, cartCookie.HttpOnly)

	var c models.Cart
	require.NoError(t, json.Unmarshal(body.Data, &c))
	assert.Equal(t, cartCookie.Value, c.ID)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "59.97", c.Subtotal.StringFixed(2))

	rec, body = h.do(jsonRequest(http.MethodGet, "/api/cart", nil, withCookie(cartCookie)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, cookie(rec, "cart_id"), "cookie is only reissued when the cart changes")
	require.NoError(t, json.Unmarshal(body.Data, &c))
	require.Len(t, c.Items, 1)

	rec, body = h.do(jsonRequest(http.MethodPatch, "/api/cart/items", map[string]interface{}{"itemId": c.Items[0].ID, "quantity": 0}, withCookie(cartCookie)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &c))
	assert.Empty(t, c.Items)
	assert.True(t, c.TotalAmount.IsZero())
}

func TestErrorsUseEnvelope(t *testing.T) {
	h := newHarness(t)
	p := repotest.SeedProduct(t, h.db, "Mug", "10.00", 1)

	rec, body := h.do(jsonRequest(http.MethodPost, "/api/cart/items", map[string]interface{}{"productId": "missing"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)

	rec, body = h.do(jsonRequest(http.MethodPost, "/api/cart/items", map[string]interface{}{"productId": p.ID, "quantity": 2}))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "OUT_OF_STOCK", body.Error.Code)

	rec, body = h.do(jsonRequest(http.MethodPost, "/api/cart/items", map[string]interface{}{"quantity": 1}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	assert.Equal(t, "required", body.Error.Fields["productId"])

	rec, body = h.do(jsonRequest(http.MethodPost, "/api/checkout", checkoutBody()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EMPTY_CART", body.Error.Code)
}

func TestGuestCheckoutAndLookup(t *testing.T) {
	h := newHarness(t)
	p := repotest.SeedProduct(t, h.db, "Mug", "19.99", 5)

	rec, _ := h.do(jsonRequest(http.MethodPost, "/api/cart/items", map[string]interface{}{"productId": p.ID, "quantity": 3}))
	require.Equal(t, http.StatusOK, rec.Code)
	cartCookie := cookie(rec, "cart_id")

	rec, body := h.do(jsonRequest(http.MethodPost, "/api/checkout", checkoutBody(), withCookie(cartCookie)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed models.Order
	require.NoError(t, json.Unmarshal(body.Data, &placed))
	assert.Equal(t, "64.97", placed.TotalAmount.StringFixed(2))
	assert.Equal(t, models.PaymentPending, placed.PaymentStatus)

	rec, body = h.do(jsonRequest(http.MethodGet, "/api/orders/"+placed.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var found models.Order
	require.NoError(t, json.Unmarshal(body.Data, &found))
	assert.Equal(t, placed.OrderNumber, found.OrderNumber)

	rec, _ = h.do(jsonRequest(http.MethodGet, "/api/orders/"+placed.OrderNumber, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "guests cannot look up by order number")

	rec, body = h.do(jsonRequest(http.MethodGet, "/api/orders/"+placed.ID+"/tracking", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var shipments []models.Shipment
	require.NoError(t, json.Unmarshal(body.Data, &shipments))
	assert.Len(t, shipments, 1)
}

func TestGuestCannotSeeUserOrder(t *testing.T) {
	h := newHarness(t)
	p := repotest.SeedProduct(t, h.db, "Mug", "10.00", 5)
	userToken := h.token("user-1", "")

	rec, _ := h.do(jsonRequest(http.MethodPost, "/api/cart/items", map[string]interface{}{"productId": p.ID}, bearer(userToken)))
	require.Equal(t, http.StatusOK, rec.Code)
	rec, body := h.do(jsonRequest(http.MethodPost, "/api/checkout", checkoutBody(), bearer(userToken)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed models.Order
	require.NoError(t, json.Unmarshal(body.Data, &placed))

	rec, _ = h.do(jsonRequest(http.MethodGet, "/api/orders/"+placed.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(jsonRequest(http.MethodGet, "/api/orders/"+placed.OrderNumber, nil, bearer(userToken)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = h.do(jsonRequest(http.MethodGet, "/api/orders/"+placed.ID, nil, bearer(h.token("user-2", ""))))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = h.do(jsonRequest(http.MethodGet, "/api/orders", nil, bearer(userToken)))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Items []models.Order `json:"items"`
		Total int64          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &listed))
	assert.EqualValues(t, 1, listed.Total)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	h := newHarness(t)

	rec, body := h.do(jsonRequest(http.MethodGet, "/api/admin/offers", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	rec, body = h.do(jsonRequest(http.MethodGet, "/api/admin/offers", nil, bearer(h.token("user-1", ""))))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)

	rec, _ = h.do(jsonRequest(http.MethodGet, "/api/admin/offers", nil, bearer("not-a-token")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	admin := bearer(h.token("admin-1", auth.RoleAdmin))
	rec, body = h.do(jsonRequest(http.MethodPost, "/api/admin/offers", map[string]interface{}{
		"code": "save10", "type": "percent", "value": "10",
	}, admin))
	require.Equal(t, http.StatusCreated, rec.Code)
	var offer models.Offer
	require.NoError(t, json.Unmarshal(body.Data, &offer))
	assert.Equal(t, "SAVE10", offer.Code)

	rec, _ = h.do(jsonRequest(http.MethodGet, "/api/health", nil, admin))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminOrderUpdate(t *testing.T) {
	h := newHarness(t)
	p := repotest.SeedProduct(t, h.db, "Mug", "10.00", 5)
	rec, _ := h.do(jsonRequest(http.MethodPost, "/api/cart/items", map[string]interface{}{"productId": p.ID}))
	cartCookie := cookie(rec, "cart_id")
	rec, body := h.do(jsonRequest(http.MethodPost, "/api/checkout", checkoutBody(), withCookie(cartCookie)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var placed models.Order
	require.NoError(t, json.Unmarshal(body.Data, &placed))

	admin := bearer(h.token("admin-1", auth.RoleAdmin))
	rec, body = h.do(jsonRequest(http.MethodPatch, "/api/admin/orders/"+placed.ID, map[string]interface{}{"status": "shipped"}, admin))
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Order
	require.NoError(t, json.Unmarshal(body.Data, &updated))
	assert.Equal(t, models.OrderShipped, updated.Status)

	rec, body = h.do(jsonRequest(http.MethodDelete, "/api/admin/orders/"+placed.ID, nil, admin))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ORDER_LOCKED", body.Error.Code)
}

func TestWorkerDrainNeedsToken(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(jsonRequest(http.MethodPost, "/api/worker/emails/drain", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, h.drainer.calls)

	rec, body := h.do(jsonRequest(http.MethodPost, "/api/worker/emails/drain", nil, func(r *http.Request) {
		r.Header.Set(workerHeader, "worker-token")
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"claimed":2,"sent":2,"retried":0,"failed":0}`, string(body.Data))
	assert.Equal(t, 1, h.drainer.calls)
}

func TestSupportMessagesAreRateLimited(t *testing.T) {
	h := newHarness(t)
	msg := map[string]string{"name": "Ada", "email": "ada@example.com", "subject": "Hi", "body": "Hello"}

	for i := 0; i < 2; i++ {
		rec, _ := h.do(jsonRequest(http.MethodPost, "/api/support/messages", msg))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec, body := h.do(jsonRequest(http.MethodPost, "/api/support/messages", msg))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)

	var count int64
	require.NoError(t, h.db.Model(&models.SupportMessage{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

type formFile struct {
	name string
	data []byte
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 20), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, folder string, files ...formFile) *http.Request {
	t.Helper()
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	if folder != "" {
		require.NoError(t, mw.WriteField("folder", folder))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &form)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadRoundTrip(t *testing.T) {
	h := newHarness(t)

	req := uploadRequest(t, "files[]", "products",
		formFile{"front.png", pngBytes(t, 16, 12)},
		formFile{"back.png", pngBytes(t, 8, 8)})
	bearer(h.token("user-1", ""))(req)
	rec, body := h.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var results []upload.Result
	require.NoError(t, json.Unmarshal(body.Data, &results))
	require.Len(t, results, 2)
	assert.NotEqual(t, results[0].Key, results[1].Key)
	assert.Equal(t, 16, results[0].Width)
	assert.Equal(t, 8, results[1].Width)

	for _, res := range results {
		assert.Equal(t, "image/jpeg", res.ContentType)
		assert.True(t, strings.HasPrefix(res.URL, "/uploads/products/"))

		stored, err := os.ReadFile(filepath.Join(h.uploads, filepath.FromSlash(res.Key)))
		require.NoError(t, err)

		served := httptest.NewRecorder()
		h.handler.ServeHTTP(served, httptest.NewRequest(http.MethodGet, res.URL, nil))
		require.Equal(t, http.StatusOK, served.Code)
		assert.Equal(t, "image/jpeg", served.Header().Get("Content-Type"))
		assert.Equal(t, stored, served.Body.Bytes())
		assert.Len(t, stored, res.Size)
	}
}

func TestUploadAcceptsSingleFileField(t *testing.T) {
	h := newHarness(t)

	req := uploadRequest(t, "file", "", formFile{"photo.png", pngBytes(t, 4, 4)})
	bearer(h.token("user-1", ""))(req)
	rec, body := h.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var results []upload.Result
	require.NoError(t, json.Unmarshal(body.Data, &results))
	require.Len(t, results, 1)
	assert.True(t, strings.HasPrefix(results[0].Key, "misc/"))
}

func TestUploadRejectsGarbage(t *testing.T) {
	h := newHarness(t)

	req := uploadRequest(t, "files[]", "misc",
		formFile{"photo.png", pngBytes(t, 4, 4)},
		formFile{"notes.txt", []byte("definitely not an image")})
	bearer(h.token("user-1", ""))(req)
	rec, body := h.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UPLOAD_FAILED", body.Error.Code)

	entries, err := os.ReadDir(filepath.Join(h.uploads, "misc"))
	if err == nil {
		assert.Empty(t, entries, "files stored before the failure are removed")
	}

	req = uploadRequest(t, "files[]", "misc")
	bearer(h.token("user-1", ""))(req)
	rec, body = h.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
}
