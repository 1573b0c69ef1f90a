package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-notes-session/authapi"
	"github.com/jrsteele09/go-notes-session/internal/config"
	"github.com/jrsteele09/go-notes-session/session"
	"github.com/jrsteele09/go-notes-session/store"
	"github.com/jrsteele09/go-notes-session/store/sqlitestore"
)

const (
	storeFile   = "file"
	storeSQLite = "sqlite"

	credentialsFile = "credentials.json"
	credentialsDB   = "credentials.db"
)

// app wires the collaborators every command needs
type app struct {
	config  config.Config
	auth    *authapi.Client
	session *session.Manager
	closer  func() error
}

func openApp(opts *rootOptions) (*app, error) {
	c, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	s, closer, err := openStore(c, opts.storeKind)
	if err != nil {
		return nil, err
	}

	return &app{
		config:  c,
		auth:    authapi.New(c.GetAuthAPIURL(), c.GetAuthAPIKey()),
		session: session.New(s),
		closer:  closer,
	}, nil
}

func (a *app) Close() error {
	return a.closer()
}

func openStore(c config.Config, kind string) (store.Store, func() error, error) {
	home := c.GetNotesHome()

	switch kind {
	case storeFile:
		var fileOpts []store.FileOption
		if key, ok := c.GetStoreEncryptionKey(); ok {
			fileOpts = append(fileOpts, store.WithEncryptionKey(*key))
		}
		fileStore, err := store.NewFileStore(filepath.Join(home, credentialsFile), fileOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create credential store: %w", err)
		}
		return fileStore, func() error { return nil }, nil

	case storeSQLite:
		if err := os.MkdirAll(home, 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create %s: %w", home, err)
		}
		db, err := sqlitestore.Open(filepath.Join(home, credentialsDB))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential database: %w", err)
		}
		return db, db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q (want %s or %s)", kind, storeFile, storeSQLite)
	}
}
