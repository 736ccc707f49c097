// Package coerce converts notated values between type tags. Conversions never
// fail: irrecoverable input is logged and replaced with a safe default.
package coerce

import (
	"math"
	"strconv"
	"strings"

	"github.com/rpattn/resourcekit/internal/domain"
	"go.uber.org/zap"
)

// Engine performs type conversions against a registry.
type Engine struct {
	registry *domain.Registry
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger receiving conversion warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a conversion engine.
func NewEngine(reg *domain.Registry, opts ...Option) *Engine {
	e := &Engine{registry: reg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Convert maps n to the representation of target.
func (e *Engine) Convert(n domain.Notated, target domain.TypeName) domain.Notated {
	value := n.Value
	if value == nil {
		value = domain.Null{}
	}

	if n.Type == target {
		return domain.Notated{Type: target, Value: domain.Clone(value)}
	}
	if cp, ok := value.(domain.CustomProperty); ok {
		value = cp.Value
		if value == nil {
			value = domain.Null{}
		}
	}

	switch {
	case target == domain.TypeString:
		return domain.Notated{Type: target, Value: e.toString(value)}
	case target == domain.TypeNumber:
		return domain.Notated{Type: target, Value: e.toNumber(value)}
	case target == domain.TypeBoolean:
		return domain.Notated{Type: target, Value: domain.Boolean(domain.Truthy(value))}
	case target == domain.TypeObject:
		return domain.Notated{Type: target, Value: e.toObject(value)}
	case target == domain.TypeArray:
		return domain.Notated{Type: target, Value: e.toArray(n.Type, value)}
	case e.registry.IsReferenceType(target):
		return domain.Notated{Type: target, Value: e.toReference(target, value)}
	default:
		e.logger.Warn("unknown conversion target; value left unchanged",
			zap.String("from", string(n.Type)),
			zap.String("target", string(target)),
		)
		return domain.Notated{Type: n.Type, Value: domain.Clone(n.Value)}
	}
}

func (e *Engine) toString(value domain.Value) domain.Value {
	if s, ok := value.(domain.String); ok {
		return s
	}
	encoded, err := domain.EncodeJSON(value)
	if err != nil {
		e.logger.Warn("cannot stringify value", zap.String("kind", string(value.Kind())), zap.Error(err))
		return domain.String("")
	}
	return domain.String(encoded)
}

func (e *Engine) toNumber(value domain.Value) domain.Value {
	f := domain.NumberOf(value)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		e.logger.Warn("value is not a finite number; using 0",
			zap.String("kind", string(value.Kind())),
			zap.String("value", domain.Text(value)),
		)
		return domain.Number(0)
	}
	return domain.Number(f)
}

func (e *Engine) toObject(value domain.Value) domain.Value {
	switch typed := value.(type) {
	case domain.Object:
		return typed.Clone()
	case domain.Array:
		out := make(domain.Object, len(typed))
		for i, item := range typed {
			out[strconv.Itoa(i)] = domain.Clone(item)
		}
		return out
	case domain.String:
		trimmed := strings.TrimSpace(string(typed))
		if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
			parsed, err := domain.DecodeObject([]byte(trimmed))
			if err != nil {
				e.logger.Warn("cannot parse object literal", zap.String("value", trimmed), zap.Error(err))
				return domain.Object{}
			}
			return parsed
		}
	}
	return domain.Object{"0": domain.Clone(value)}
}

func (e *Engine) toArray(prior domain.TypeName, value domain.Value) domain.Value {
	switch typed := value.(type) {
	case domain.Array:
		return domain.Clone(typed)
	case domain.Object:
		return domain.Clone(typed.Values())
	case domain.Null:
		return domain.Array{}
	case domain.String:
		trimmed := strings.TrimSpace(string(typed))
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			parsed, err := domain.DecodeValue([]byte(trimmed))
			if err != nil {
				e.logger.Warn("cannot parse array literal", zap.String("value", trimmed), zap.Error(err))
				return domain.Array{}
			}
			if arr, ok := parsed.(domain.Array); ok {
				return arr
			}
			return domain.Array{}
		}
	}
	if e.registry.IsReferenceType(prior) {
		return domain.Array{domain.CustomProperty{Type: prior, Value: domain.Clone(value)}}
	}
	return domain.Array{domain.Clone(value)}
}

func (e *Engine) toReference(target domain.TypeName, value domain.Value) domain.Value {
	id := sanitize(domain.Text(value))
	if id == "" {
		id = "new"
	}
	url, ok := e.registry.ResourceURL(target, id)
	if !ok {
		e.logger.Warn("reference target has no endpoint", zap.String("target", string(target)))
		return domain.String(id)
	}
	return domain.String(url)
}

func sanitize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
