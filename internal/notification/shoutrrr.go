package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/radiorec/radiorec/internal/errors"
)

// ShoutrrrProvider sends through a single shoutrrr router built from one or
// more service URLs.
type ShoutrrrProvider struct {
	name    string
	urls    []string
	types   map[Type]bool
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrProvider creates a provider. With no types every type is accepted.
func NewShoutrrrProvider(name string, urls []string, types []Type, timeout time.Duration) *ShoutrrrProvider {
	sp := &ShoutrrrProvider{
		name:    strings.TrimSpace(name),
		urls:    slices.Clone(urls),
		types:   map[Type]bool{},
		timeout: timeout,
	}
	if sp.name == "" {
		sp.name = "shoutrrr"
	}
	if len(types) == 0 {
		types = AllTypes
	}
	for _, t := range types {
		sp.types[t] = true
	}
	return sp
}

func (s *ShoutrrrProvider) Name() string             { return s.name }
func (s *ShoutrrrProvider) SupportsType(t Type) bool { return s.types[t] }

// ValidateConfig builds the router, which parses every URL.
func (s *ShoutrrrProvider) ValidateConfig() error {
	if len(s.urls) == 0 {
		return errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(s.urls...)
	if err != nil {
		return errors.Newf("invalid notification URL: %s", errors.ScrubMessage(err.Error())).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.timeout > 0 {
		sender.Timeout = s.timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	s.sender = sender
	return nil
}

// Send delivers n to every configured service and returns the first error.
func (s *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if s.sender == nil {
		return fmt.Errorf("shoutrrr sender not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	for _, e := range s.sender.Send(n.Message, &params) {
		if e != nil {
			return errors.Newf("%s", errors.ScrubMessage(e.Error())).
				Component("notification").
				Category(errors.CategoryNotification).
				Build()
		}
	}
	return nil
}
