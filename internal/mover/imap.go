package mover

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// IMAPConfig points at an IMAP server reachable with an administrative
// account that can see every user's mailbox (shared namespace).
type IMAPConfig struct {
	Addr     string `yaml:"addr"` // host:port
	TLS      bool   `yaml:"tls"`
	Insecure bool   `yaml:"insecure"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// MailboxTemplate maps an address to a mailbox name. Placeholders:
	// {address}, {local}, {domain}. Default "{address}".
	MailboxTemplate string `yaml:"mailbox_template"`
}

// imapConn is the subset of *client.Client the mover needs.
type imapConn interface {
	Login(username, password string) error
	Logout() error
	Status(name string, items []imap.StatusItem) (*imap.MailboxStatus, error)
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Create(name string) error
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Move(seqset *imap.SeqSet, dest string) error
}

// IMAPMover moves all messages of one mailbox into another over IMAP.
type IMAPMover struct {
	cfg  IMAPConfig
	dial func() (imapConn, error)
}

// NewIMAPMover validates cfg and creates an IMAPMover.
func NewIMAPMover(cfg IMAPConfig) (*IMAPMover, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("imap mover: addr is required")
	}
	if cfg.MailboxTemplate == "" {
		cfg.MailboxTemplate = "{address}"
	}
	m := &IMAPMover{cfg: cfg}
	m.dial = func() (imapConn, error) {
		if cfg.TLS {
			return client.DialTLS(cfg.Addr, &tls.Config{InsecureSkipVerify: cfg.Insecure})
		}
		return client.Dial(cfg.Addr)
	}
	return m, nil
}

// mailboxName applies the configured template to an address.
func (m *IMAPMover) mailboxName(address string) string {
	address = strings.TrimSpace(address)
	local, domain, _ := strings.Cut(address, "@")
	r := strings.NewReplacer("{address}", address, "{local}", local, "{domain}", domain)
	return r.Replace(m.cfg.MailboxTemplate)
}

// session dials, logs in and runs fn. Each call gets its own connection so
// concurrent items never share protocol state.
func (m *IMAPMover) session(ctx context.Context, fn func(c imapConn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := m.dial()
	if err != nil {
		return fmt.Errorf("imap dial %s: %w", m.cfg.Addr, err)
	}
	defer c.Logout()
	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	return fn(c)
}

func (m *IMAPMover) Ping(ctx context.Context) error {
	return m.session(ctx, func(imapConn) error { return nil })
}

func (m *IMAPMover) Lookup(ctx context.Context, identity string) (MailboxInfo, error) {
	var info MailboxInfo
	err := m.session(ctx, func(c imapConn) error {
		name := m.mailboxName(identity)
		if _, err := c.Status(name, []imap.StatusItem{imap.StatusMessages}); err != nil {
			// STATUS on a missing mailbox is a NO response
			return nil
		}
		info.Exists = true
		_, size, err := selectAndMeasure(c, name, true)
		if err != nil {
			return err
		}
		info.SizeMB = float64(size) / (1 << 20)
		return nil
	})
	return info, err
}

func (m *IMAPMover) Move(ctx context.Context, source, target string) (MoveResult, error) {
	var res MoveResult
	err := m.session(ctx, func(c imapConn) error {
		src, dst := m.mailboxName(source), m.mailboxName(target)
		if _, err := c.Status(dst, []imap.StatusItem{imap.StatusMessages}); err != nil {
			if err := c.Create(dst); err != nil {
				return fmt.Errorf("creating %s: %w", dst, err)
			}
		}
		count, size, err := selectAndMeasure(c, src, false)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		seqset := new(imap.SeqSet)
		seqset.AddRange(1, count)
		if err := c.Move(seqset, dst); err != nil {
			return fmt.Errorf("moving %s to %s: %w", src, dst, err)
		}
		res = MoveResult{ItemsMoved: int(count), BytesMoved: size}
		return nil
	})
	return res, err
}

// selectAndMeasure selects name and returns its message count and total
// RFC822 size.
func selectAndMeasure(c imapConn, name string, readOnly bool) (uint32, int64, error) {
	mbox, err := c.Select(name, readOnly)
	if err != nil {
		return 0, 0, fmt.Errorf("selecting %s: %w", name, err)
	}
	if mbox.Messages == 0 {
		return 0, 0, nil
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(1, mbox.Messages)
	messages := make(chan *imap.Message, 64)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchRFC822Size}, messages)
	}()
	var total int64
	for msg := range messages {
		total += int64(msg.Size)
	}
	if err := <-done; err != nil {
		return 0, 0, fmt.Errorf("measuring %s: %w", name, err)
	}
	return mbox.Messages, total, nil
}
