package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kasuganosora/teamlink/server/apperr"
	"github.com/kasuganosora/teamlink/server/gateway"
	"github.com/kasuganosora/teamlink/server/middleware"
	"go.uber.org/zap"
)

// Client is the connection a packet arrived on.
type Client interface {
	UserID() string
	// AcceptSeq reports whether seq is newer than any seen before.
	AcceptSeq(seq uint64) bool
	Send(pkt *gateway.Packet) bool
}

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, c Client, payload json.RawMessage) error

// ErrorPayload is sent back in an error packet when a handler fails.
type ErrorPayload struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate
// handler. Failures are answered with an error packet carrying the seq.
func (r *Router) Dispatch(c Client, raw []byte) {
	var pkt gateway.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.String("user_id", c.UserID()),
			zap.Error(err))
		r.fail(c, &pkt, apperr.Validationf("malformed packet"))
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if !c.AcceptSeq(pkt.Seq) {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("user_id", c.UserID()),
			zap.Uint64("seq", pkt.Seq))
		return
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.String("user_id", c.UserID()))
		r.fail(c, &pkt, apperr.Validationf("unknown message type %q", pkt.Type))
		return
	}

	traceID := uuid.NewString()
	ctx := middleware.WithTraceID(context.Background(), traceID)
	ctx = context.WithValue(ctx, ctxKeySeq{}, pkt.Seq)

	if err := fn(ctx, c, pkt.Payload); err != nil {
		kind := apperr.KindOf(err)
		log := r.logger.Debug
		if kind == apperr.Internal {
			log = r.logger.Error
		}
		log("handler error",
			zap.String("type", pkt.Type),
			zap.String("user_id", c.UserID()),
			zap.String("trace_id", traceID),
			zap.Error(err))
		r.fail(c, &pkt, err)
	}
}

func (r *Router) fail(c Client, pkt *gateway.Packet, err error) {
	raw, _ := json.Marshal(ErrorPayload{
		Type:    pkt.Type,
		Kind:    apperr.KindOf(err).String(),
		Message: apperr.Message(err),
	})
	c.Send(&gateway.Packet{Seq: pkt.Seq, Type: gateway.EventError, Payload: raw})
}

type ctxKeySeq struct{}

// reply answers the packet being handled, echoing its seq.
func reply(ctx context.Context, c Client, msgType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	seq, _ := ctx.Value(ctxKeySeq{}).(uint64)
	c.Send(&gateway.Packet{Seq: seq, Type: msgType, Payload: raw})
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode unmarshals payload into v and validates its `validate` tags.
func decode(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return apperr.Wrap(apperr.Validation, err, "malformed payload")
	}
	if err := validate.Struct(v); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			return apperr.Wrap(apperr.Validation, err,
				fmt.Sprintf("%s failed %s", fields[0].Field(), fields[0].Tag()))
		}
		return apperr.Wrap(apperr.Validation, err, "invalid payload")
	}
	return nil
}
