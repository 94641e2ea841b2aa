// Package debug provides the debug node, which reports received messages to
// the process log and to an in-memory sidebar.
package debug

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Jeffail/gabs/v2"
	"github.com/dukex/microred/pkg/config"
	"github.com/dukex/microred/pkg/flow"
	"github.com/dukex/microred/pkg/models"
)

// SidebarSize is the number of entries kept in the sidebar.
const SidebarSize = 100

type Config struct {
	Complete   string `mapstructure:"complete"   default:"payload"`
	Console    bool   `mapstructure:"console"`
	ToSidebar  bool   `mapstructure:"tosidebar"  default:"true"`
	ToStatus   bool   `mapstructure:"tostatus"`
	TargetType string `mapstructure:"targetType"`
}

// Node serializes the configured property (or the whole message) as JSON.
type Node struct {
	flow.Base

	property string
	console  bool
	sidebar  bool

	// guarded for readers outside the loop, such as the admin API
	mu      sync.Mutex
	entries []string
}

func NewNode(opts flow.Options) *Node {
	return &Node{Base: flow.NewBase(opts)}
}

func (n *Node) OnSetup(item models.Item) error {
	var cfg Config
	if err := config.Decode(item.Config, &cfg); err != nil {
		return err
	}

	if cfg.TargetType == "jsonata" {
		return config.Unimplemented("jsonata target")
	}

	if cfg.ToStatus {
		return config.Unimplemented("tostatus")
	}

	// weakly typed decoding turns a boolean true into "1"
	if cfg.Complete != "true" && cfg.Complete != "1" {
		n.property = cfg.Complete
	}

	n.console = cfg.Console
	n.sidebar = cfg.ToSidebar

	return nil
}

func (n *Node) OnMessage(msg *models.Message) (*models.Message, error) {
	value, err := n.render(msg)
	if err != nil {
		return nil, err
	}

	if n.console {
		n.Logger().Info("Debug", "name", n.Label(), "value", value)
	}

	if n.sidebar {
		n.mu.Lock()
		n.entries = append(n.entries, value)
		if len(n.entries) > SidebarSize {
			n.entries = n.entries[len(n.entries)-SidebarSize:]
		}
		n.mu.Unlock()
	}

	return nil, nil
}

func (n *Node) render(msg *models.Message) (string, error) {
	var target any = msg

	if n.property != "" {
		target = gabs.Wrap(msg.Fields()).Path(n.property).Data()
	}

	encoded, err := json.Marshal(target)
	if err != nil {
		return "", fmt.Errorf("debug %s: %w", n.ID(), err)
	}

	return string(encoded), nil
}

// Sidebar returns the most recent rendered values, oldest first.
func (n *Node) Sidebar() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.entries...)
}
