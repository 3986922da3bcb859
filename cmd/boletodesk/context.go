package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"boletodesk/internal/config"
	"boletodesk/internal/console"
	"boletodesk/internal/logging"
	"boletodesk/internal/services"
	"boletodesk/internal/session"
	"boletodesk/internal/workflow"
)

type commandContext struct {
	configFlag  *string
	sessionFlag *string
	jsonFlag    *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag, sessionFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		sessionFlag: sessionFlag,
		jsonFlag:    jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withConsole opens the console for one command and always saves the
// registry afterwards, even when fn fails.
func (c *commandContext) withConsole(cmd *cobra.Command, fn func(context.Context, *console.Console) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	ctx := services.WithRequestID(cmd.Context(), uuid.NewString())
	con, err := console.Open(ctx, cfg, console.WithLogger(logging.WithContext(ctx, logger)))
	if err != nil {
		return explainError(err)
	}
	runErr := con.HandleError(fn(ctx, con))
	closeErr := con.Close(context.WithoutCancel(ctx))
	return explainError(errors.Join(runErr, closeErr))
}

// withWorkflow runs fn against the selected session, or the active one.
func (c *commandContext) withWorkflow(cmd *cobra.Command, fn func(context.Context, *console.Console, session.Session, *workflow.Workflow) error) error {
	return c.withConsole(cmd, func(ctx context.Context, con *console.Console) error {
		var ref string
		if c.sessionFlag != nil {
			ref = *c.sessionFlag
		}
		sess, wf, err := resolveSession(ctx, con, ref)
		if err != nil {
			return err
		}
		ctx = services.WithSessionID(ctx, sess.ID)
		if sess.OperationID != "" {
			ctx = services.WithOperationID(ctx, sess.OperationID)
		}
		return fn(ctx, con, sess, wf)
	})
}

func resolveSession(ctx context.Context, con *console.Console, ref string) (session.Session, *workflow.Workflow, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return con.Active(ctx)
	}
	id, err := matchSession(con.Registry(), ref)
	if err != nil {
		return session.Session{}, nil, err
	}
	wf, err := con.Workflow(ctx, id)
	if err != nil {
		return session.Session{}, nil, err
	}
	sess, _ := con.Registry().Get(id)
	return sess, wf, nil
}

// matchSession accepts a full id, a unique id prefix or a 1-based list
// position.
func matchSession(reg *session.Registry, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	sessions := reg.List()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(sessions) {
			return "", services.Wrap(services.ErrNotFound, "", "session", fmt.Sprintf("no session at position %d (%d open)", n, len(sessions)), nil)
		}
		return sessions[n-1].ID, nil
	}
	var matches []string
	for _, s := range sessions {
		if s.ID == ref {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, ref) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", services.Wrap(services.ErrNotFound, "", "session", "no session matches "+ref, nil)
	case 1:
		return matches[0], nil
	default:
		return "", services.Wrap(services.ErrValidation, "", "session", fmt.Sprintf("%q matches %d sessions", ref, len(matches)), nil)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
