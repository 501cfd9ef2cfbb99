package cli

import (
	"context"
	"net"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/roach88/holoclient/internal/clone"
	"github.com/roach88/holoclient/internal/conductor"
	"github.com/roach88/holoclient/internal/signing"
	"github.com/roach88/holoclient/internal/store"
)

func (o *RootOptions) conductorOptions(extra ...conductor.Option) []conductor.Option {
	opts := []conductor.Option{
		conductor.WithLogger(o.Logger),
		conductor.WithTransportOptions(o.Config.Transport.SessionOptions()...),
	}
	return append(opts, extra...)
}

func (o *RootOptions) connectAdmin(ctx context.Context) (*conductor.AdminWebsocket, error) {
	if o.Config.AdminURL == "" {
		return nil, NewExitError(ExitCommandError, "admin url is not configured")
	}
	admin, err := conductor.ConnectAdmin(ctx, o.Config.AdminURL, o.conductorOptions()...)
	if err != nil {
		return nil, clientExit("connect admin interface", err)
	}
	return admin, nil
}

// appURL returns the configured app url, or one built from the admin url
// host and the first attached app interface. An interface is attached
// when none exists.
func (o *RootOptions) appURL(ctx context.Context, admin *conductor.AdminWebsocket) (string, error) {
	if o.Config.AppURL != "" {
		return o.Config.AppURL, nil
	}
	ports, err := admin.ListAppInterfaces(ctx)
	if err != nil {
		return "", err
	}
	var port uint16
	if len(ports) > 0 {
		port = ports[0]
	} else if port, err = admin.AttachAppInterface(ctx, 0); err != nil {
		return "", err
	}

	u, err := url.Parse(o.Config.AdminURL)
	if err != nil {
		return "", errors.Wrap(err, "parse admin url")
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(int(port)))
	return u.String(), nil
}

// appSession is an app agent with the connections and registry backing it.
type appSession struct {
	admin *conductor.AdminWebsocket
	app   *conductor.AppWebsocket
	agent *conductor.AppAgent
	store *store.Store
}

func (s *appSession) Close() {
	if s.app != nil {
		_ = s.app.Close()
	}
	if s.admin != nil {
		_ = s.admin.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// openAgent connects both interfaces and binds an agent to the configured
// app. The credential file, when configured, is loaded into the signer.
func (o *RootOptions) openAgent(ctx context.Context) (*appSession, error) {
	if o.Config.AppID == "" {
		return nil, NewExitError(ExitCommandError, "app id is not configured (use --app-id)")
	}

	signer := signing.NewClientAgentSigner(signing.SignOptions{})
	if o.Config.Credentials != "" {
		creds, err := signing.LoadCredentials(o.Config.Credentials)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "load credentials", err)
		}
		signer.Add(creds)
	}

	s := &appSession{}
	var managerOpts []clone.ManagerOption
	managerOpts = append(managerOpts, clone.WithLogger(o.Logger))
	if o.Config.Registry != "" {
		st, err := store.Open(o.Config.Registry)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "open clone registry", err)
		}
		s.store = st
		managerOpts = append(managerOpts, clone.WithRegistry(store.NewRegistry(st)))
	}

	var err error
	if s.admin, err = o.connectAdmin(ctx); err != nil {
		s.Close()
		return nil, err
	}
	appURL, err := o.appURL(ctx, s.admin)
	if err != nil {
		s.Close()
		return nil, clientExit("resolve app interface", err)
	}
	s.app, err = conductor.ConnectApp(ctx, appURL, o.conductorOptions(conductor.WithSigner(signer))...)
	if err != nil {
		s.Close()
		return nil, clientExit("connect app interface", err)
	}
	s.agent, err = conductor.NewAppAgent(ctx, s.app, o.Config.AppID, s.admin, managerOpts...)
	if err != nil {
		s.Close()
		return nil, clientExit("load app "+o.Config.AppID, err)
	}
	o.Logger.Debug().Str("app_id", o.Config.AppID).Str("app_url", appURL).Msg("app agent ready")
	return s, nil
}
