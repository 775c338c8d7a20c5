package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-logistics-auth/auth"
	fakeresetrepo "github.com/jrsteele09/go-logistics-auth/auth/repofakes"
	resetsql "github.com/jrsteele09/go-logistics-auth/auth/sqlrepo"
	"github.com/jrsteele09/go-logistics-auth/companies"
	companyrepofake "github.com/jrsteele09/go-logistics-auth/companies/repofake"
	companysql "github.com/jrsteele09/go-logistics-auth/companies/sqlrepo"
	"github.com/jrsteele09/go-logistics-auth/internal/config"
	"github.com/jrsteele09/go-logistics-auth/internal/store"
	"github.com/jrsteele09/go-logistics-auth/policy"
	"github.com/jrsteele09/go-logistics-auth/server"
	"github.com/jrsteele09/go-logistics-auth/token"
	"github.com/jrsteele09/go-logistics-auth/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-logistics-auth/token/refresh/repofake"
	refreshsql "github.com/jrsteele09/go-logistics-auth/token/refresh/sqlrepo"
	"github.com/jrsteele09/go-logistics-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-logistics-auth/users/repofake"
	usersql "github.com/jrsteele09/go-logistics-auth/users/sqlrepo"
	"github.com/rs/zerolog/log"
)

const purgeInterval = time.Hour

type repos struct {
	users     users.UserRepo
	companies companies.Repo
	resets    auth.PasswordResetRepo
	refresh   refresh.Repo
}

type app struct {
	server *server.Server
	auth   *auth.Service
	db     *store.DB
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Err(err).Msg("closing database")
		}
	}
}

// assemble builds every component the server needs from configuration.
func assemble(ctx context.Context, c config.Config) (*app, error) {
	r, db, err := openRepos(ctx, c)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	signer, err := token.NewSignerFromConfig(c)
	if err != nil {
		a.close()
		return nil, err
	}
	tokens := token.New(signer,
		token.WithTokenExpiry(c.GetAccessTokenExpiry()),
		token.WithIssuer(c.GetBaseURL()),
		token.WithAudience(c.GetAudience()),
	)

	a.auth, err = auth.NewService(
		auth.Repos{Users: r.users, Companies: r.companies, Resets: r.resets},
		tokens,
		refresh.NewManager(r.refresh, c),
		auth.WithNotifier(auth.NewLogNotifier(log.Logger, c.GetBaseURL())),
		auth.WithMinPasswordLength(c.GetMinPasswordLength()),
		auth.WithResetTimeout(c.GetPasswordResetExpiry()),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	table := policy.DefaultTable()
	if path := c.GetPolicyFile(); path != "" {
		if table, err = policy.LoadTable(table, path); err != nil {
			a.close()
			return nil, err
		}
		log.Info().Str("path", path).Strs("policies", table.Names()).Msg("policy file loaded")
	}

	a.server, err = server.New(c, server.Deps{
		Auth:     a.auth,
		Tokens:   tokens,
		Policies: policy.NewEvaluator(table, log.Logger),
		Users:    r.users,
		Ready:    readiness(db),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func openRepos(ctx context.Context, c config.StoreConfig) (repos, *store.DB, error) {
	var (
		db  *store.DB
		err error
	)
	switch adapter := c.GetDBAdapter(); adapter {
	case config.AdapterMemory:
		log.Warn().Msg("using in-memory storage, sessions and accounts are lost on restart")
		return repos{
			users:     fakeuserrepo.NewFakeUserRepo(),
			companies: companyrepofake.NewFakeCompanyRepo(),
			resets:    fakeresetrepo.NewFakePasswordResetRepo(),
			refresh:   refreshrepofake.NewFakeRefreshTokenRepo(),
		}, nil, nil
	case config.AdapterSQLite:
		db, err = store.OpenSQLite(ctx, c.GetSQLitePath())
	case config.AdapterPostgres:
		db, err = store.OpenPostgres(ctx, c.GetDatabaseURL())
	default:
		return repos{}, nil, fmt.Errorf("unknown %s %q", config.DBAdapterEnvVar, adapter)
	}
	if err != nil {
		return repos{}, nil, err
	}
	log.Info().Str("dialect", string(db.Dialect)).Msg("database ready")
	return repos{
		users:     usersql.New(db),
		companies: companysql.New(db),
		resets:    resetsql.New(db),
		refresh:   refreshsql.New(db),
	}, db, nil
}

func readiness(db *store.DB) func(context.Context) error {
	if db == nil {
		return nil
	}
	return db.PingContext
}

// purgeLoop drops expired refresh tokens and password resets until ctx ends.
func purgeLoop(ctx context.Context, a *app) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.auth.Purge(ctx); err != nil {
				log.Err(err).Msg("purge failed")
			}
		}
	}
}
