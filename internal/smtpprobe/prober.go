// Package smtpprobe drives a single TCP connection through the SMTP
// RCPT-probe state machine: HELO, MAIL FROM, RCPT TO, QUIT. It replaces
// net/smtp (used by the teacher's utils/verifier.go) with a raw
// bufio.Reader/net.Conn pair because net/smtp exposes no hook to bind a
// local source address per dial and no visibility into multiline
// continuation lines — the same downgrade optimode-emailkit's
// internal/smtppool and other_examples/gsoultan-Hermod__smtpprobe.go
// make for the identical reason.
package smtpprobe

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"verihunt/verrors"
)

// state is the explicit S0-S4 progression of §4.3, replacing the
// original callback-chained promise with a single value advanced by
// each reply.
type state int

const (
	sConnected state = iota
	sHeloSent
	sMailSent
	sRcptSent
	sQuitSent
)

// blockSignals are lowercase substrings whose presence anywhere in a
// server reply or transport error flags a probe as IP-block risk,
// without altering the probe's own valid/invalid verdict.
var blockSignals = []string{
	"blocked", "blacklisted", "banned", "denied", "rejected",
	"spam", "authentication required", "connection refused",
}

// Config configures one probe run. HeloHostname and Sender are process
// constants (§6: "configured constants"). IdleTimeout is re-armed as a
// connection deadline before each command is written and before each
// reply line is read; bytes arriving in the middle of a line do not
// re-arm it.
type Config struct {
	HeloHostname string
	Sender       string
	IdleTimeout  time.Duration
	// LocalAddr binds the outbound connection's source address; nil
	// lets the OS pick one.
	LocalAddr net.Addr
	// Dial is injectable for tests; defaults to a net.Dialer using
	// LocalAddr and a 10s connect timeout.
	Dial func(network, address string, localAddr net.Addr, timeout time.Duration) (net.Conn, error)
	// OnTransition is called once per state transition, letting callers
	// emit one log event per §4.3's "Side effects" without this package
	// depending on the logging package.
	OnTransition func(from, to string)
}

// Result is the transient, per-probe verdict of §3's ProbeResult.
type Result struct {
	Email      string
	Valid      bool
	Reason     verrors.Reason
	Details    string
	SourceIP   string
	Blocked    bool
	DialedAt   time.Time
	FinishedAt time.Time
}

func defaultDial(network, address string, localAddr net.Addr, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout, LocalAddr: localAddr}
	return dialer.Dial(network, address)
}

// Probe connects to host:25, drives HELO/MAIL FROM/RCPT TO/QUIT for
// email, and returns a classified, terminal Result. It never retries
// internally (§7: "None at the probe level").
func Probe(cfg Config, host, email string) Result {
	dial := cfg.Dial
	if dial == nil {
		dial = defaultDial
	}
	sourceIP := ""
	if cfg.LocalAddr != nil {
		sourceIP = hostOf(cfg.LocalAddr.String())
	}

	result := Result{Email: email, SourceIP: sourceIP, DialedAt: time.Now()}

	conn, err := dial("tcp", net.JoinHostPort(host, "25"), cfg.LocalAddr, 10*time.Second)
	if err != nil {
		result.Blocked = containsBlockSignal(err.Error())
		return finish(result, false, classifyTransportError(err))
	}
	defer conn.Close()

	sess := &session{
		cfg:   cfg,
		conn:  conn,
		r:     bufio.NewReader(conn),
		state: sConnected,
	}

	verdict, reason, details, blocked, err := sess.run(email)
	result.Blocked = result.Blocked || blocked
	if err != nil {
		pe, _ := verrors.As(err)
		return finish(result, false, *pe)
	}
	result.Details = details
	result.Blocked = blocked || result.Blocked
	return finish(withReason(result, verdict, reason), verdict, reasonAndDetails{reason, details})
}

type reasonAndDetails struct {
	reason  verrors.Reason
	details string
}

func withReason(r Result, valid bool, reason verrors.Reason) Result {
	r.Valid = valid
	r.Reason = reason
	return r
}

func finish(r Result, valid bool, rd interface{}) Result {
	r.Valid = valid
	r.FinishedAt = time.Now()
	switch v := rd.(type) {
	case verrors.Reason:
		r.Reason = v
	case verrors.ProbeError:
		r.Reason = v.Reason
		r.Details = v.Details
		r.Blocked = r.Blocked || containsBlockSignal(v.Details) || containsBlockSignal(v.Error())
	case reasonAndDetails:
		r.Reason = v.reason
		r.Details = v.details
	}
	return r
}

type session struct {
	cfg   Config
	conn  net.Conn
	r     *bufio.Reader
	state state
}

func (s *session) transition(to state, name string) {
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(stateName(s.state), name)
	}
	s.state = to
}

func stateName(s state) string {
	switch s {
	case sConnected:
		return "CONNECTED"
	case sHeloSent:
		return "HELO_SENT"
	case sMailSent:
		return "MAIL_SENT"
	case sRcptSent:
		return "RCPT_SENT"
	case sQuitSent:
		return "QUIT_SENT"
	default:
		return "UNKNOWN"
	}
}

// run drives the state machine to completion, returning the RCPT
// verdict. Any transport error or timeout at any stage is terminal.
func (s *session) run(email string) (valid bool, reason verrors.Reason, details string, blocked bool, err error) {
	// S0: read banner
	banner, rerr := s.readReply()
	if rerr != nil {
		return false, "", "", containsBlockSignal(rerr.Error()), errTransport(rerr)
	}
	blocked = blocked || containsBlockSignal(banner)

	// S0 -> S1: HELO
	if werr := s.writeLine("HELO " + s.cfg.HeloHostname); werr != nil {
		return false, "", "", blocked, errTransport(werr)
	}
	s.transition(sHeloSent, "HELO_SENT")
	heloReply, rerr := s.readReply()
	if rerr != nil {
		return false, "", "", blocked || containsBlockSignal(rerr.Error()), errTransport(rerr)
	}
	blocked = blocked || containsBlockSignal(heloReply)
	if !is2xx(heloReply) {
		return false, "", "", blocked, verrors.New(verrors.UnknownError, heloReply)
	}

	// S1 -> S2: MAIL FROM
	if werr := s.writeLine(fmt.Sprintf("MAIL FROM:<%s>", s.cfg.Sender)); werr != nil {
		return false, "", "", blocked, errTransport(werr)
	}
	s.transition(sMailSent, "MAIL_SENT")
	mailReply, rerr := s.readReply()
	if rerr != nil {
		return false, "", "", blocked || containsBlockSignal(rerr.Error()), errTransport(rerr)
	}
	blocked = blocked || containsBlockSignal(mailReply)
	if !is2xx(mailReply) {
		return false, "", "", blocked, verrors.New(verrors.UnknownError, mailReply)
	}

	// S2 -> S3: RCPT TO
	if werr := s.writeLine(fmt.Sprintf("RCPT TO:<%s>", email)); werr != nil {
		return false, "", "", blocked, errTransport(werr)
	}
	s.transition(sRcptSent, "RCPT_SENT")
	rcptReply, rerr := s.readReply()
	if rerr != nil {
		return false, "", "", blocked || containsBlockSignal(rerr.Error()), errTransport(rerr)
	}
	blocked = blocked || containsBlockSignal(rcptReply)

	valid, reason = classifyRCPT(rcptReply)

	// S3 -> S4: QUIT (best-effort; the verdict is already final)
	_ = s.writeLine("QUIT")
	s.transition(sQuitSent, "QUIT_SENT")
	_, _ = s.readReply()

	return valid, reason, rcptReply, blocked, nil
}

func errTransport(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return verrors.Wrap(verrors.Timeout, err)
	}
	return verrors.Wrap(verrors.ConnectionError, err)
}

func classifyTransportError(err error) reasonAndDetails {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return reasonAndDetails{verrors.Timeout, err.Error()}
	}
	return reasonAndDetails{verrors.ConnectionError, err.Error()}
}

// classifyRCPT inspects the first three ASCII digits of the RCPT reply.
func classifyRCPT(reply string) (bool, verrors.Reason) {
	code := firstThreeDigits(reply)
	switch code {
	case "250":
		return true, ""
	case "550", "551", "553":
		return false, verrors.InvalidRecipient
	case "452":
		return false, verrors.FullMailbox
	default:
		return false, verrors.UnknownError
	}
}

func firstThreeDigits(reply string) string {
	if len(reply) < 3 {
		return ""
	}
	code := reply[:3]
	if _, err := strconv.Atoi(code); err != nil {
		return ""
	}
	return code
}

func is2xx(reply string) bool {
	return strings.HasPrefix(firstThreeDigits(reply), "2")
}

func containsBlockSignal(text string) bool {
	lower := strings.ToLower(text)
	for _, sig := range blockSignals {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

func (s *session) writeLine(line string) error {
	s.setDeadline()
	_, err := s.conn.Write([]byte(line + "\r\n"))
	return err
}

// readReply accumulates lines until one whose 4th character is a space
// rather than '-', per the multiline continuation rule the original
// implementation lacked (§9 "Multiline SMTP replies"). Grounded on
// optimode-emailkit/internal/smtppool.readResponse.
func (s *session) readReply() (string, error) {
	var lines []string
	for {
		s.setDeadline()
		line, err := s.r.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			continue
		}
		lines = append(lines, line)
		if len(line) < 4 || line[3] != '-' {
			break
		}
	}
	return strings.Join(lines, " "), nil
}

func (s *session) setDeadline() {
	timeout := s.cfg.IdleTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	_ = s.conn.SetDeadline(time.Now().Add(timeout))
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
