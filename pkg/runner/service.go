// Package runner loads flow definitions from disk, compiles them into a
// root container and drives the cooperative main loop.
package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/internal/configsvc"
	"github.com/loomengine/loom/mainloop"
	"github.com/loomengine/loom/metatype"
	"github.com/loomengine/loom/nodes"
	"github.com/loomengine/loom/pkg/registry"
	"go.uber.org/zap"
)

// Service owns one running flow: it reads the definition through the config
// service, builds the root container type and runs the main loop until its
// context is cancelled.
type Service struct {
	log        *zap.Logger
	configSvc  *configsvc.Service
	configPath string
	registry   *nodes.NodeRegistry
}

func New(log *zap.Logger, configSvc *configsvc.Service, configPath string, reg *nodes.NodeRegistry) *Service {
	return &Service{
		log:        log,
		configSvc:  configSvc,
		configPath: configPath,
		registry:   reg,
	}
}

// Start builds the flow and blocks in the main loop until ctx is cancelled.
// Configuration changes on disk are validated and logged but only take
// effect on restart.
func (s *Service) Start(ctx context.Context) error {
	select {
	case <-s.configSvc.Ready():
	case <-ctx.Done():
		return nil
	}

	cfg, err := configsvc.Register(s.configSvc, s.configPath, FlowConfig{}, func(cfg FlowConfig, err error) {
		if err != nil {
			s.log.Warn("flow config changed but is unreadable", zap.Error(err))
			return
		}
		if _, err := BuildType(s.registry, cfg); err != nil {
			s.log.Warn("flow config changed but is invalid", zap.Error(err))
			return
		}
		s.log.Info("flow config changed, restart to apply")
	})
	if err != nil {
		return fmt.Errorf("load flow config %s: %w", s.configPath, err)
	}

	typ, err := BuildType(s.registry, cfg)
	if err != nil {
		return fmt.Errorf("build flow: %w", err)
	}

	mainloop.Init()
	defer mainloop.Shutdown()

	root, err := flow.NewNode(nil, "root", typ, nil)
	if err != nil {
		return fmt.Errorf("open flow: %w", err)
	}
	defer root.Del()

	stop := context.AfterFunc(ctx, mainloop.Quit)
	defer stop()

	s.log.Info("flow running", zap.String("config", s.configPath))
	return mainloop.Run()
}

// BuildType compiles a flow definition into its root container type,
// synthesizing declared metatypes first.
func BuildType(reg *nodes.NodeRegistry, cfg FlowConfig) (*flow.NodeType, error) {
	declared := registry.New[*flow.NodeType]()
	for _, dc := range cfg.Declares {
		mctx := &metatype.Context{
			Name:     dc.Name,
			Contents: dc.Contents,
			ReadFile: os.ReadFile,
			StoreType: func(t *flow.NodeType) error {
				if t.Description == nil || t.Description.Name == "" {
					return fmt.Errorf("stored type has no name")
				}
				return declared.Register(t.Description.Name, t)
			},
		}
		t, err := metatype.CreateType(dc.Metatype, mctx)
		if err != nil {
			return nil, fmt.Errorf("declare %q: %w", dc.Name, err)
		}
		if err := declared.Register(dc.Name, t); err != nil {
			return nil, fmt.Errorf("declare %q: %w", dc.Name, err)
		}
	}

	resolver := func(name string) (*flow.NodeType, error) {
		if t, err := declared.Get(name); err == nil {
			return t, nil
		}
		return reg.Get(name)
	}

	b := flow.NewBuilder().WithResolver(resolver).WithTypeName("root")
	for _, nc := range cfg.Nodes {
		typ, err := resolver(nc.Type)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nc.Name, err)
		}
		named, err := namedOptions(typ.Options, nc.Options)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nc.Name, err)
		}
		opts, err := flow.NewOptions(typ.Options, named)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nc.Name, err)
		}
		b.AddNode(nc.Name, typ, opts)
	}
	for _, cc := range cfg.Connections {
		b.Connect(cc.Src, cc.SrcPort, cc.Dst, cc.DstPort)
	}
	for _, e := range cfg.Exports.In {
		b.ExportInPort(e.Node, e.Port, e.As)
	}
	for _, e := range cfg.Exports.Out {
		b.ExportOutPort(e.Node, e.Port, e.As)
	}
	return b.Build()
}
