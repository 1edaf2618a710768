package smtpprobe

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"verihunt/verrors"
)

// scriptedDial drives a request/reply exchange over net.Pipe: banner is
// sent immediately, then one scripted reply per line read from the
// client, mirroring a real SMTP server's turn-taking.
func scriptedDial(t *testing.T, banner string, replies []string) func(network, address string, localAddr net.Addr, timeout time.Duration) (net.Conn, error) {
	return func(network, address string, localAddr net.Addr, timeout time.Duration) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			_, _ = server.Write([]byte(banner))
			r := bufio.NewReader(server)
			for _, reply := range replies {
				if _, err := r.ReadString('\n'); err != nil {
					return
				}
				if _, err := server.Write([]byte(reply)); err != nil {
					return
				}
			}
			server.Close()
		}()
		return client, nil
	}
}

func baseConfig(dial func(string, string, net.Addr, time.Duration) (net.Conn, error)) Config {
	return Config{
		HeloHostname: "verihunt.example",
		Sender:       "probe@verihunt.example",
		IdleTimeout:  2 * time.Second,
		Dial:         dial,
	}
}

func TestProbeAcceptedRecipientIsValid(t *testing.T) {
	dial := scriptedDial(t, "220 mx.example.com ready\r\n", []string{
		"250 mx.example.com Hello\r\n",
		"250 OK\r\n",
		"250 Accepted\r\n",
		"221 Bye\r\n",
	})
	result := Probe(baseConfig(dial), "mx.example.com", "ada@example.com")
	assert.True(t, result.Valid)
	assert.Empty(t, result.Reason)
}

func TestProbeRejectedRecipientIsInvalid(t *testing.T) {
	dial := scriptedDial(t, "220 mx.example.com ready\r\n", []string{
		"250 mx.example.com Hello\r\n",
		"250 OK\r\n",
		"550 No such user\r\n",
		"221 Bye\r\n",
	})
	result := Probe(baseConfig(dial), "mx.example.com", "nobody@example.com")
	assert.False(t, result.Valid)
	assert.Equal(t, verrors.InvalidRecipient, result.Reason)
}

func TestProbeFullMailboxClassification(t *testing.T) {
	dial := scriptedDial(t, "220 mx.example.com ready\r\n", []string{
		"250 mx.example.com Hello\r\n",
		"250 OK\r\n",
		"452 Mailbox full\r\n",
		"221 Bye\r\n",
	})
	result := Probe(baseConfig(dial), "mx.example.com", "full@example.com")
	assert.False(t, result.Valid)
	assert.Equal(t, verrors.FullMailbox, result.Reason)
}

func TestProbeMultilineReplyIsJoinedNotTruncated(t *testing.T) {
	dial := scriptedDial(t, "220 mx.example.com ready\r\n", []string{
		"250-mx.example.com Hello\r\n250-PIPELINING\r\n250 8BITMIME\r\n",
		"250 OK\r\n",
		"250 Accepted\r\n",
		"221 Bye\r\n",
	})
	result := Probe(baseConfig(dial), "mx.example.com", "ada@example.com")
	assert.True(t, result.Valid)
}

func TestProbeDetectsBlockSignalInReply(t *testing.T) {
	dial := scriptedDial(t, "220 mx.example.com ready\r\n", []string{
		"250 mx.example.com Hello\r\n",
		"250 OK\r\n",
		"550 5.7.1 Your IP has been blacklisted\r\n",
		"221 Bye\r\n",
	})
	result := Probe(baseConfig(dial), "mx.example.com", "ada@example.com")
	assert.False(t, result.Valid)
	assert.True(t, result.Blocked)
}

func TestProbeDialFailureIsConnectionError(t *testing.T) {
	cfg := baseConfig(func(network, address string, localAddr net.Addr, timeout time.Duration) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Err: assert.AnError}
	})
	result := Probe(cfg, "mx.example.com", "ada@example.com")
	assert.False(t, result.Valid)
	assert.Equal(t, verrors.ConnectionError, result.Reason)
}

func TestProbeHeloRejectionStopsBeforeRcpt(t *testing.T) {
	dial := scriptedDial(t, "220 mx.example.com ready\r\n", []string{
		"421 Service not available\r\n",
	})
	result := Probe(baseConfig(dial), "mx.example.com", "ada@example.com")
	assert.False(t, result.Valid)
	assert.Equal(t, verrors.UnknownError, result.Reason)
}

func TestProbeRecordsStateTransitionsInOrder(t *testing.T) {
	var transitions []string
	dial := scriptedDial(t, "220 mx.example.com ready\r\n", []string{
		"250 mx.example.com Hello\r\n",
		"250 OK\r\n",
		"250 Accepted\r\n",
		"221 Bye\r\n",
	})
	cfg := baseConfig(dial)
	cfg.OnTransition = func(from, to string) {
		transitions = append(transitions, from+"->"+to)
	}
	Probe(cfg, "mx.example.com", "ada@example.com")

	assert.Equal(t, []string{
		"CONNECTED->HELO_SENT",
		"HELO_SENT->MAIL_SENT",
		"MAIL_SENT->RCPT_SENT",
		"RCPT_SENT->QUIT_SENT",
	}, transitions)
}

func TestClassifyRCPTCodes(t *testing.T) {
	cases := []struct {
		reply  string
		valid  bool
		reason verrors.Reason
	}{
		{"250 OK", true, ""},
		{"550 No such user", false, verrors.InvalidRecipient},
		{"551 User not local", false, verrors.InvalidRecipient},
		{"553 Mailbox name invalid", false, verrors.InvalidRecipient},
		{"452 Mailbox full", false, verrors.FullMailbox},
		{"421 Try again", false, verrors.UnknownError},
	}
	for _, c := range cases {
		valid, reason := classifyRCPT(c.reply)
		assert.Equal(t, c.valid, valid, c.reply)
		assert.Equal(t, c.reason, reason, c.reply)
	}
}

func TestContainsBlockSignalIsCaseInsensitive(t *testing.T) {
	assert.True(t, containsBlockSignal("Your IP has been BLACKLISTED"))
	assert.True(t, containsBlockSignal("550 Authentication required"))
	assert.False(t, containsBlockSignal("250 OK"))
}
