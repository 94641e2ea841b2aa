package models

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

const (
	// TypeTab is the type of flow container items.
	TypeTab = "tab"

	// ConfigFlowID is the distinguished flow holding global configuration nodes
	// such as brokers. It exists even when no item references it.
	ConfigFlowID = "config"
)

var ErrInvalidItem = errors.New("invalid flow item")

// Item is one entry of a declarative flow description. Config keeps the whole
// raw item so node implementations can decode their own settings from it.
type Item struct {
	Type     string     `mapstructure:"type"     validate:"required"`
	ID       string     `mapstructure:"id"       validate:"required"`
	Z        string     `mapstructure:"z"`
	Name     string     `mapstructure:"name"`
	Label    string     `mapstructure:"label"`
	Disabled bool       `mapstructure:"disabled"`
	Wires    [][]string `mapstructure:"wires"`
	Links    []string   `mapstructure:"links"`

	Config map[string]any `mapstructure:"-"`
}

// IsTab reports whether the item is a flow container.
func (i Item) IsTab() bool {
	return i.Type == TypeTab
}

// FlowID returns the id of the flow owning the item: its own id for a tab,
// its parent otherwise, defaulting to the global configuration flow.
func (i Item) FlowID() string {
	if i.IsTab() {
		return i.ID
	}

	if i.Z == "" {
		return ConfigFlowID
	}

	return i.Z
}

// ItemFromMap decodes the well known item fields from a raw description entry.
func ItemFromMap(raw map[string]any) (Item, error) {
	var item Item

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &item,
	})
	if err != nil {
		return Item{}, err
	}

	if err := decoder.Decode(raw); err != nil {
		return Item{}, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	item.Config = raw

	return item, nil
}

// ItemsFromMaps decodes a whole description, preserving order.
func ItemsFromMaps(raw []map[string]any) ([]Item, error) {
	items := make([]Item, 0, len(raw))

	for index, entry := range raw {
		item, err := ItemFromMap(entry)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", index, err)
		}

		items = append(items, item)
	}

	return items, nil
}
