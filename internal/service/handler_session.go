package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cafeworks/postbot/internal/core"
	"github.com/cafeworks/postbot/internal/domain/model"
)

// handleInitSession performs the first login for a session's browser profile.
// A profile whose restored cookies still carry a live login skips the
// credential flow entirely; a logged-out one decrypts the account secret and
// runs the login flow (with a bounded manual window on a challenge). Either
// way the profile is persisted and the session marked active.
func (p *Processor) handleInitSession(ctx context.Context, job *model.Job, payload *model.InitSessionPayload) error {
	client, release, err := p.pool.Acquire(ctx, payload.ProfileID)
	if err != nil {
		return fmt.Errorf("acquire browser profile %s: %w", payload.ProfileID, err)
	}
	defer release()

	authed, err := client.IsAuthenticated(ctx)
	if err != nil {
		return fmt.Errorf("auth probe on profile %s: %w", payload.ProfileID, err)
	}
	if authed {
		p.appendLog(ctx, job.ID, "info", "profile already authenticated, login skipped")
	} else if err := p.loginFromAccount(ctx, job, payload, client); err != nil {
		return err
	}

	p.bestEffort(ctx, job.ID, "save profile", func() error {
		return p.pool.SaveProfile(ctx, payload.ProfileID)
	})

	var nickname *string
	p.bestEffort(ctx, job.ID, "fetch nickname", func() error {
		nick, nickErr := client.FetchNickname(ctx)
		if nickErr != nil {
			return nickErr
		}
		nickname = &nick
		return nil
	})

	if err := p.sessions.MarkActive(ctx, payload.SessionID, p.now(), nickname); err != nil {
		return fmt.Errorf("mark session %s active: %w", payload.SessionID, err)
	}
	p.appendLog(ctx, job.ID, "info", "session initialized")
	return nil
}

// loginFromAccount decrypts the payload account's secret and runs the
// credential flow, recording the outcome on both the session and the account.
func (p *Processor) loginFromAccount(ctx context.Context, job *model.Job, payload *model.InitSessionPayload, client core.AutomationClient) error {
	account, err := p.accounts.GetByID(ctx, payload.AccountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", payload.AccountID, err)
	}

	secret, err := p.secrets.Decrypt(account.EncryptedSecret)
	if err != nil {
		reason := "credential decrypt failed: " + err.Error()
		p.bestEffort(ctx, job.ID, "mark session error", func() error {
			return p.sessions.MarkError(ctx, payload.SessionID, reason)
		})
		p.bestEffort(ctx, job.ID, "record login failure", func() error {
			return p.accounts.RecordLoginResult(ctx, account.ID, false, reason)
		})
		return terminal(fmt.Errorf("decrypt credentials for account %s: %w", account.ID, err))
	}
	creds := model.Credentials{LoginID: account.LoginID, Password: string(secret)}

	if loginErr := p.login(ctx, job.ID, client, creds); loginErr != nil {
		p.bestEffort(ctx, job.ID, "mark session error", func() error {
			return p.sessions.MarkError(ctx, payload.SessionID, loginErr.Error())
		})
		p.bestEffort(ctx, job.ID, "record login failure", func() error {
			return p.accounts.RecordLoginResult(ctx, account.ID, false, loginErr.Error())
		})
		p.bestEffort(ctx, job.ID, "failure screenshot", func() error {
			_, shotErr := p.pool.Screenshot(ctx, payload.ProfileID, "init_login_failed")
			return shotErr
		})
		if errors.Is(loginErr, model.ErrBadCredentials) || errors.Is(loginErr, model.ErrLoginChallenge) {
			return terminal(loginErr)
		}
		return loginErr
	}

	p.bestEffort(ctx, job.ID, "record login success", func() error {
		return p.accounts.RecordLoginResult(ctx, account.ID, true, "")
	})
	return nil
}

// handleVerifySession probes an existing session and allows one re-login
// before declaring it expired. A reachable profile with a failing nickname
// probe stays valid; the failure leaves a screenshot and a log line.
func (p *Processor) handleVerifySession(ctx context.Context, job *model.Job, payload *model.VerifySessionPayload) error {
	sess, err := p.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", payload.SessionID, err)
	}

	client, release, err := p.pool.Acquire(ctx, sess.ProfileID)
	if err != nil {
		return fmt.Errorf("acquire browser profile %s: %w", sess.ProfileID, err)
	}
	defer release()

	if err := p.ensureAuthenticated(ctx, job, sess, client); err != nil {
		return err
	}

	var nickname *string
	nick, nickErr := client.FetchNickname(ctx)
	if nickErr != nil {
		p.appendLog(ctx, job.ID, "warn", "nickname probe failed: "+nickErr.Error())
		p.bestEffort(ctx, job.ID, "diagnostic screenshot", func() error {
			_, shotErr := p.pool.Screenshot(ctx, sess.ProfileID, "nickname_probe")
			return shotErr
		})
	} else {
		nickname = &nick
	}

	if err := p.sessions.MarkActive(ctx, sess.ID, p.now(), nickname); err != nil {
		return fmt.Errorf("mark session %s active: %w", sess.ID, err)
	}
	p.bestEffort(ctx, job.ID, "save profile", func() error {
		return p.pool.SaveProfile(ctx, sess.ProfileID)
	})
	p.appendLog(ctx, job.ID, "info", "session verified")
	return nil
}

// ensureAuthenticated probes the acquired client and, when logged out, runs
// exactly one re-login through the session's linked account. On failure the
// session is marked expired, evidence is captured and the error propagates.
func (p *Processor) ensureAuthenticated(ctx context.Context, job *model.Job, sess *model.RemoteSession, client core.AutomationClient) error {
	authed, err := client.IsAuthenticated(ctx)
	if err != nil {
		return fmt.Errorf("auth probe on session %s: %w", sess.ID, err)
	}
	if authed {
		return nil
	}

	p.appendLog(ctx, job.ID, "warn", "session not authenticated, attempting re-login")
	if reloginErr := p.relogin(ctx, job.ID, client, sess.AccountID); reloginErr != nil {
		reason := "re-login failed: " + reloginErr.Error()
		p.bestEffort(ctx, job.ID, "mark session expired", func() error {
			return p.sessions.MarkExpired(ctx, sess.ID, reason)
		})
		p.bestEffort(ctx, job.ID, "failure screenshot", func() error {
			_, shotErr := p.pool.Screenshot(ctx, sess.ProfileID, "session_expired")
			return shotErr
		})
		return fmt.Errorf("session %s expired: %w", sess.ID, reloginErr)
	}
	return nil
}

// relogin re-runs the credential flow for the session's account and records
// the outcome on the account row.
func (p *Processor) relogin(ctx context.Context, jobID string, client core.AutomationClient, accountID string) error {
	if accountID == "" {
		return errors.New("session has no linked account")
	}
	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load account %s: %w", accountID, err)
	}
	secret, err := p.secrets.Decrypt(account.EncryptedSecret)
	if err != nil {
		return fmt.Errorf("decrypt credentials: %w", err)
	}

	loginErr := p.login(ctx, jobID, client, model.Credentials{LoginID: account.LoginID, Password: string(secret)})
	if loginErr != nil {
		p.bestEffort(ctx, jobID, "record login failure", func() error {
			return p.accounts.RecordLoginResult(ctx, account.ID, false, loginErr.Error())
		})
		return loginErr
	}
	p.bestEffort(ctx, jobID, "record login success", func() error {
		return p.accounts.RecordLoginResult(ctx, account.ID, true, "")
	})
	return nil
}

// login runs the automated credential flow. When the flow reports a human
// verification challenge it holds the job open for a bounded operator window,
// re-probing authentication until the window expires.
func (p *Processor) login(ctx context.Context, jobID string, client core.AutomationClient, creds model.Credentials) error {
	err := client.Login(ctx, creds)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrLoginChallenge) {
		return err
	}

	p.appendLog(ctx, jobID, "warn",
		fmt.Sprintf("login challenge detected, waiting up to %s for manual completion", p.manualWait))
	p.logger.WarnContext(ctx, "login challenge, manual window open",
		"job_id", jobID, "wait", p.manualWait.String())

	deadline := time.NewTimer(p.manualWait)
	defer deadline.Stop()
	ticker := time.NewTicker(p.manualPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("manual login window expired after %s: %w", p.manualWait, model.ErrLoginChallenge)
		case <-ticker.C:
			authed, probeErr := client.IsAuthenticated(ctx)
			if probeErr != nil {
				p.logger.WarnContext(ctx, "auth probe during manual window", "job_id", jobID, "error", probeErr)
				continue
			}
			if authed {
				p.appendLog(ctx, jobID, "info", "manual login completed")
				return nil
			}
		}
	}
}
