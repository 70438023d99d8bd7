package session

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/creativeprojects/imapfilter/lib"
	"github.com/emersion/go-imap"
	compress "github.com/emersion/go-imap-compress"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

// startServer runs an in-memory IMAP server. Its INBOX contains one message with UID 6.
func startServer(t *testing.T) (string, int) {
	t.Helper()
	backend := memory.New()

	imapServer := server.New(backend)
	// plain text authentication over a non-encrypted connection is fine for a test
	imapServer.AllowInsecureAuth = true
	imapServer.Enable(compress.NewExtension())

	listener, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = imapServer.Serve(listener)
	}()
	t.Cleanup(func() {
		_ = imapServer.Close()
		wg.Wait()
	})

	host, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	portNumber, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, portNumber
}

func dialServer(t *testing.T, host string, port int, password string) (*Session, error) {
	t.Helper()
	return Dial(context.Background(), Config{
		Host:     host,
		Port:     port,
		Username: "username",
		Password: password,
		Dialer:   &NetDialer{NoTLS: true, Timeout: 5 * time.Second},
		Logger:   lib.NewTestLogger(t, "imap"),
	})
}

func TestAgainstServer(t *testing.T) {
	host, port := startServer(t)

	session, err := dialServer(t, host, port, "password")
	require.NoError(t, err)
	defer session.Logout()

	assert.Equal(t, uint32(1), session.UIDValidity())
	assert.Equal(t, uint32(1), session.Status().Messages)
	assert.True(t, session.HasCapability("IDLE"))

	uids, more, err := session.SearchNewUIDs(1)
	require.NoError(t, err)
	assert.Equal(t, []uint32{6}, uids)
	assert.False(t, more)

	// the last message is always returned by "n:*"
	uids, _, err = session.SearchNewUIDs(7)
	require.NoError(t, err)
	assert.Empty(t, uids)

	header, err := session.FetchHeader(6)
	require.NoError(t, err)
	assert.Contains(t, string(header), "From: contact@example.org")
	assert.Contains(t, string(header), "Subject: A little message, just for you")
	assert.NotContains(t, string(header), "Hi there")

	// copying to a missing folder fails without breaking the session
	err = session.Copy(6, "Spam")
	require.Error(t, err)
	assert.False(t, IsFatal(err))

	require.NoError(t, session.Create("Spam"))
	require.NoError(t, session.Copy(6, "Spam"))
	require.NoError(t, session.StoreFlags(6, imap.DeletedFlag, imap.SeenFlag))
	require.NoError(t, session.Expunge())

	uids, _, err = session.SearchNewUIDs(1)
	require.NoError(t, err)
	assert.Empty(t, uids)
	assert.Equal(t, uint32(0), session.Status().Messages)

	result, err := session.IdleWait(context.Background(), 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, IdleTimeout, result)
	require.NoError(t, session.Noop())
}

func TestAgainstServerWithWrongPassword(t *testing.T) {
	host, port := startServer(t)

	_, err := dialServer(t, host, port, "wrong")
	require.Error(t, err)
	connectError := &ConnectError{}
	require.ErrorAs(t, err, &connectError)
	assert.Equal(t, StageLogin, connectError.Stage)
	assert.True(t, connectError.Auth)
}
