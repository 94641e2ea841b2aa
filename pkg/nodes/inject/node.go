// Package inject provides the inject node, which builds a message from typed
// properties and sends it on start, on an interval or on a cron schedule.
package inject

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/eventloop"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
	"github.com/dukex/microred/pkg/otelhelper"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
)

var ErrRepeatAndCrontab = errors.New("repeat and crontab are mutually exclusive")

type Property struct {
	P  string `mapstructure:"p"`
	V  any    `mapstructure:"v"`
	VT string `mapstructure:"vt"`
}

type Config struct {
	Once        bool       `mapstructure:"once"`
	OnceDelay   float64    `mapstructure:"onceDelay"   validate:"min=0"`
	Repeat      float64    `mapstructure:"repeat"      validate:"min=0"`
	Crontab     string     `mapstructure:"crontab"`
	Payload     any        `mapstructure:"payload"`
	PayloadType string     `mapstructure:"payloadType" default:"date"`
	Topic       string     `mapstructure:"topic"`
	Props       []Property `mapstructure:"props"`
}

type property struct {
	name  string
	value func() (any, error)
}

// Node injects messages. Without a repeat interval or crontab it injects exactly
// once, onceDelay seconds after start (or on the next loop turn).
type Node struct {
	flow.Base

	loop   *eventloop.Loop
	tracer trace.Tracer

	delay      time.Duration
	repeat     time.Duration
	schedule   cron.Schedule
	properties []property

	timer     *eventloop.Timer
	cronTimer *eventloop.Timer
}

func NewNode(opts flow.Options, loop *eventloop.Loop, tracer trace.Tracer) *Node {
	return &Node{
		Base:   flow.NewBase(opts),
		loop:   loop,
		tracer: tracer,
	}
}

func (n *Node) OnSetup(item models.Item) error {
	var cfg Config
	if err := config.Decode(item.Config, &cfg); err != nil {
		return err
	}

	if cfg.Once {
		n.delay = seconds(cfg.OnceDelay)
	}

	n.repeat = seconds(cfg.Repeat)

	if cfg.Crontab != "" {
		if n.repeat > 0 {
			return fmt.Errorf("%w: %w", config.ErrInvalidConfig, ErrRepeatAndCrontab)
		}

		schedule, err := cron.ParseStandard(cfg.Crontab)
		if err != nil {
			return fmt.Errorf("%w: invalid cron expression: %w", config.ErrInvalidConfig, err)
		}

		n.schedule = schedule
	}

	props := cfg.Props
	if props == nil {
		props = []Property{{P: models.FieldPayload}, {P: models.FieldTopic, VT: "str"}}
	}

	n.properties = make([]property, 0, len(props))

	for _, p := range props {
		valueType, raw := p.VT, p.V

		switch p.P {
		case models.FieldPayload:
			valueType, raw = cfg.PayloadType, cfg.Payload
		case models.FieldTopic:
			if raw == nil {
				valueType, raw = "str", cfg.Topic
			}
		}

		value, err := n.resolver(valueType, raw)
		if err != nil {
			return fmt.Errorf("property %s: %w", p.P, err)
		}

		n.properties = append(n.properties, property{name: p.P, value: value})
	}

	return nil
}

func (n *Node) resolver(valueType string, raw any) (func() (any, error), error) {
	text := ""
	if raw != nil {
		text = fmt.Sprint(raw)
	}

	switch valueType {
	case "bool":
		value := text == "true"

		return func() (any, error) { return value, nil }, nil
	case "date":
		return func() (any, error) { return n.loop.Clock().Now().UnixMilli(), nil }, nil
	case "json":
		if !json.Valid([]byte(text)) {
			return nil, fmt.Errorf("%w: invalid JSON %q", config.ErrInvalidConfig, text)
		}

		// decoded per injection so downstream nodes never share a value
		return func() (any, error) {
			var value any
			err := json.Unmarshal([]byte(text), &value)

			return value, err
		}, nil
	case "num":
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", config.ErrInvalidConfig, text)
		}

		return func() (any, error) { return value, nil }, nil
	case "str", "":
		return func() (any, error) { return text, nil }, nil
	case "flow":
		return func() (any, error) { return n.Flow().Context().Get(text), nil }, nil
	case "global":
		return func() (any, error) { return n.Flow().Global().Get(text), nil }, nil
	case "env":
		return func() (any, error) { return os.Getenv(text), nil }, nil
	default:
		return nil, config.Unimplemented("property type " + valueType)
	}
}

func (n *Node) OnStart(context.Context) error {
	switch {
	case n.schedule != nil:
		if n.delay > 0 {
			n.timer = n.loop.SetTimeout(n.delay, n.fire)
		}

		n.scheduleNext()
	case n.repeat > 0:
		n.timer = n.loop.SetTimer(n.delay, n.repeat, n.fire)
	default:
		n.timer = n.loop.SetTimeout(n.delay, n.fire)
	}

	return nil
}

func (n *Node) scheduleNext() {
	now := n.loop.Clock().Now()
	next := n.schedule.Next(now)

	n.cronTimer = n.loop.SetTimeout(next.Sub(now), func() {
		n.fire()
		n.scheduleNext()
	})
}

func (n *Node) OnStop(context.Context) error {
	n.timer.Clear()
	n.cronTimer.Clear()
	n.timer, n.cronTimer = nil, nil

	return nil
}

func (n *Node) fire() {
	_, span := otelhelper.StartSpan(context.Background(), n.tracer, "inject.fire",
		otelhelper.NodeAttributes(n.Flow().ID(), n.ID(), n.Type())...)

	err := n.Trigger()
	if err != nil {
		n.Logger().Error("Inject delivery failed", "error", err)
	}

	otelhelper.End(span, err)
}

// Trigger builds a message from the configured properties and sends it.
func (n *Node) Trigger() error {
	return n.TriggerWith(nil)
}

// TriggerWith sends the configured message with the given fields replacing
// the evaluated properties.
func (n *Node) TriggerWith(overrides map[string]any) error {
	msg := models.NewMessage(make(map[string]any, len(n.properties)+len(overrides)))

	for _, p := range n.properties {
		if _, ok := overrides[p.name]; ok {
			continue
		}

		value, err := p.value()
		if err != nil {
			return fmt.Errorf("property %s: %w", p.name, err)
		}

		msg.Set(p.name, value)
	}

	for k, v := range overrides {
		msg.Set(k, v)
	}

	return n.Send(msg)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
