package order

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/vesta/internal/dto"
	"github.com/Additional-Code/vesta/internal/engine"
	"github.com/Additional-Code/vesta/internal/entity"
	"github.com/Additional-Code/vesta/internal/fulfillment"
	"github.com/Additional-Code/vesta/internal/presentation/http/response"
	"github.com/Additional-Code/vesta/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/vesta/transport/http/order")

const actorHeader = "X-Actor"

// Handler exposes the order engine operations over HTTP. The caller
// layer is responsible for authorization; the actor header is taken
// purely for audit trails.
type Handler struct {
	eng *engine.Engine
}

// NewHandler constructs an order Handler.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{eng: eng}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("/draft", h.createDraft)
	g.POST("/bulk-cancel", h.bulkCancel)
	g.GET("/token/:token", h.getByToken)
	g.GET("/:id", h.getByID)
	g.DELETE("/:id", h.deleteDraft)
	g.GET("/:id/events", h.events)
	g.POST("/:id/lines", h.addLine)
	g.PUT("/:id/lines/:lineID", h.updateLine)
	g.DELETE("/:id/lines/:lineID", h.removeLine)
	g.POST("/:id/complete", h.completeDraft)
	g.POST("/:id/capture", h.capture)
	g.POST("/:id/refund", h.refund)
	g.POST("/:id/void", h.void)
	g.POST("/:id/mark-as-paid", h.markAsPaid)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/notes", h.addNote)
	g.POST("/:id/fulfillments", h.createFulfillment)
	g.POST("/:id/fulfillments/:fid/cancel", h.cancelFulfillment)
	g.PATCH("/:id/fulfillments/:fid/tracking", h.updateTracking)
	g.PUT("/:id/metadata/:key", h.updateMetadata)
	g.DELETE("/:id/metadata/:key", h.deleteMetadata)

	e.GET("/events/recent", h.recentEvents)
}

func actor(c echo.Context) string {
	if a := c.Request().Header.Get(actorHeader); a != "" {
		return a
	}
	return "anonymous"
}

type draftLinePayload struct {
	ProductRef string `json:"product_ref"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
}

func (p draftLinePayload) toInput() (engine.DraftLineInput, error) {
	price, err := decimal.NewFromString(p.UnitPrice)
	if err != nil {
		return engine.DraftLineInput{}, errorbank.BadRequest("invalid unit_price", errorbank.WithCause(err))
	}
	return engine.DraftLineInput{
		ProductRef: p.ProductRef,
		Quantity:   p.Quantity,
		UnitPrice:  price,
	}, nil
}

func (h *Handler) createDraft(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		Currency string             `json:"currency"`
		Address  *entity.Address    `json:"address"`
		Lines    []draftLinePayload `json:"lines"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	in := engine.CreateDraftInput{
		Currency: payload.Currency,
		Address:  payload.Address,
		Actor:    actor(c),
	}
	for _, lp := range payload.Lines {
		li, err := lp.toInput()
		if err != nil {
			return b.WithError(err).Build()
		}
		in.Lines = append(in.Lines, li)
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.createDraft")
	defer span.End()

	o, err := h.eng.CreateDraft(ctx, in)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.Get(ctx, id)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) getByToken(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByToken")
	defer span.End()

	o, err := h.eng.GetByToken(ctx, c.Param("token"))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) deleteDraft(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.deleteDraft", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	if err := h.eng.DeleteDraft(ctx, id); err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithStatus(http.StatusNoContent).Build()
}

func (h *Handler) addLine(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload draftLinePayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	in, err := payload.toInput()
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.addLine", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.AddDraftLine(ctx, id, in)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) updateLine(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateLine", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.UpdateDraftLine(ctx, id, c.Param("lineID"), payload.Quantity)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) removeLine(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.removeLine", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.RemoveDraftLine(ctx, id, c.Param("lineID"))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) completeDraft(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.completeDraft", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.CompleteDraft(ctx, id, actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

type amountPayload struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (p amountPayload) parse() (decimal.Decimal, string, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return decimal.Zero, "", errorbank.BadRequest("invalid amount", errorbank.WithCause(err))
	}
	return amount, p.Currency, nil
}

func (h *Handler) capture(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload amountPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	amount, currency, err := payload.parse()
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.capture", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.Capture(ctx, id, amount, currency, actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) refund(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload amountPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	amount, currency, err := payload.parse()
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.refund", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.Refund(ctx, id, amount, currency, actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) void(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.void", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.Void(ctx, id, actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) markAsPaid(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.markAsPaid", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.MarkAsPaid(ctx, id, actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.Cancel(ctx, id, actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) bulkCancel(c echo.Context) error {
	b := response.New(c)

	var payload struct {
		OrderIDs []string `json:"order_ids"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if len(payload.OrderIDs) == 0 {
		return b.WithError(errorbank.BadRequest("order_ids is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.bulkCancel", trace.WithAttributes(attribute.Int("orders", len(payload.OrderIDs))))
	defer span.End()

	results := h.eng.BulkCancel(ctx, payload.OrderIDs, actor(c))
	items := make([]dto.BulkCancelItemResponse, 0, len(results))
	for _, r := range results {
		item := dto.BulkCancelItemResponse{OrderID: r.OrderID, OK: r.Err == nil}
		if r.Err != nil {
			appErr := toAppError(r.Err)
			item.Error = appErr.Message()
			item.Kind = string(appErr.Kind())
		}
		items = append(items, item)
	}
	return b.WithData(items).Build()
}

func (h *Handler) addNote(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.addNote", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.AddNote(ctx, id, payload.Message, actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) createFulfillment(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload struct {
		TrackingNumber string `json:"tracking_number"`
		Lines          []struct {
			LineID   string `json:"line_id"`
			Quantity int    `json:"quantity"`
		} `json:"lines"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	items := make([]fulfillment.LineQuantity, 0, len(payload.Lines))
	for _, l := range payload.Lines {
		items = append(items, fulfillment.LineQuantity{LineID: l.LineID, Quantity: l.Quantity})
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.createFulfillment", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.CreateFulfillment(ctx, id, items, payload.TrackingNumber, actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithStatus(http.StatusCreated).WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) cancelFulfillment(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancelFulfillment", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.CancelFulfillment(ctx, id, c.Param("fid"), actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) updateTracking(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload struct {
		TrackingNumber string `json:"tracking_number"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateTracking", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.UpdateFulfillmentTracking(ctx, id, c.Param("fid"), payload.TrackingNumber, actor(c))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) updateMetadata(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload struct {
		Value string `json:"value"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateMetadata", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.UpdateMetadata(ctx, id, c.Param("key"), payload.Value)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) deleteMetadata(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.deleteMetadata", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.eng.DeleteMetadata(ctx, id, c.Param("key"))
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	return b.WithData(dto.FromOrder(o)).Build()
}

func (h *Handler) events(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.events", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	events, err := h.eng.Events(ctx, id)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	resp := make([]dto.EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, dto.FromEvent(e))
	}
	return b.WithData(resp).Build()
}

func (h *Handler) recentEvents(c echo.Context) error {
	b := response.New(c)

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return b.WithError(errorbank.BadRequest("invalid limit")).Build()
		}
		limit = parsed
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.recentEvents", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	events, err := h.eng.RecentEvents(ctx, limit)
	if err != nil {
		return b.WithError(toAppError(err)).Build()
	}
	resp := make([]dto.EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, dto.FromEvent(e))
	}
	return b.WithData(resp).Build()
}
