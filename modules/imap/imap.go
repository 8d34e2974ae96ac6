// Package imap is an IMAP-subset mailbox module backed by
// modernc.org/sqlite for mailbox and message storage.
package imap

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/lbbs/loader/bbsmodule"
)

const Name = "imap"

type mailstore struct {
	db *sql.DB
}

var instance *mailstore

const schema = `
CREATE TABLE IF NOT EXISTS mailbox (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS message (
	id INTEGER PRIMARY KEY,
	mailbox_id INTEGER NOT NULL REFERENCES mailbox(id),
	subject TEXT NOT NULL,
	body TEXT NOT NULL
);
`

func load(ctx context.Context, self bbsmodule.Handle) error {
	db, err := sql.Open("sqlite", "file:imap.db?cache=shared")
	if err != nil {
		return fmt.Errorf("imap: open: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("imap: migrate: %w", err)
	}

	instance = &mailstore{db: db}
	self.Logger().Info("imap mailstore ready")
	return nil
}

func unload(ctx context.Context, self bbsmodule.Handle) error {
	if instance == nil {
		return nil
	}
	err := instance.db.Close()
	instance = nil
	return err
}

// AppendMessage inserts a message into mailbox, creating the mailbox row if
// needed. Exercised by smtp-equivalent delivery paths wired against this
// module.
func AppendMessage(ctx context.Context, mailbox, subject, body string) error {
	if instance == nil {
		return fmt.Errorf("imap: not loaded")
	}
	tx, err := instance.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO mailbox(name) VALUES (?)`, mailbox); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO message(mailbox_id, subject, body)
		SELECT id, ?, ? FROM mailbox WHERE name = ?`, subject, body, mailbox); err != nil {
		return err
	}
	return tx.Commit()
}

// BBSRegister is the well-known constructor symbol.
func BBSRegister(r bbsmodule.Registrar) error {
	_, err := r.Register(bbsmodule.Descriptor{
		Name:        Name,
		Description: "IMAP-subset mailbox storage",
		Entrypoints: bbsmodule.Entrypoints{
			Load:   load,
			Unload: unload,
		},
	})
	return err
}
