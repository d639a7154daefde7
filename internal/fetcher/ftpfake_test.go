package fetcher

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeFTP serves a fixed set of files over the subset of FTP the
// jlaffaye client needs for a passive RETR.
type fakeFTP struct {
	ln    net.Listener
	files map[string]string
	wg    sync.WaitGroup
}

func newFakeFTP(t *testing.T, files map[string]string) *fakeFTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeFTP{ln: ln, files: files}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.session(conn)
			}()
		}
	}()
	t.Cleanup(func() {
		ln.Close() //nolint:errcheck
		s.wg.Wait()
	})
	return s
}

// url returns an ftp:// URL for path on this server.
func (s *fakeFTP) url(path string) string {
	return "ftp://" + s.ln.Addr().String() + path
}

// ftpReplies holds the fixed single-line answers.
var ftpReplies = map[string]string{
	"USER": "331 password please",
	"PASS": "230 logged in",
	"TYPE": "200 type ok",
	"OPTS": "200 ok",
	"FEAT": "211-Features:\r\n UTF8\r\n211 End",
}

func (s *fakeFTP) session(conn net.Conn) {
	defer conn.Close()                                 //nolint:errcheck
	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	r := bufio.NewReader(conn)
	reply := func(format string, args ...any) {
		fmt.Fprintf(conn, format+"\r\n", args...) //nolint:errcheck
	}
	reply("220 fake ftp")

	var data net.Listener
	defer func() {
		if data != nil {
			data.Close() //nolint:errcheck
		}
	}()

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		verb = strings.ToUpper(verb)

		if msg, ok := ftpReplies[verb]; ok {
			reply("%s", msg)
			continue
		}
		switch verb {
		case "EPSV":
			if data, err = net.Listen("tcp", "127.0.0.1:0"); err != nil {
				reply("425 no data port")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", data.Addr().(*net.TCPAddr).Port)
		case "RETR":
			s.retrieve(data, arg, reply)
			data.Close() //nolint:errcheck
			data = nil
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func (s *fakeFTP) retrieve(data net.Listener, path string, reply func(string, ...any)) {
	if data == nil {
		reply("425 use EPSV first")
		return
	}
	body, ok := s.files[path]
	if !ok {
		reply("550 %s: no such file", path)
		return
	}
	reply("150 sending %s", path)
	dc, err := data.Accept()
	if err != nil {
		reply("425 data connection failed")
		return
	}
	io.WriteString(dc, body) //nolint:errcheck
	dc.Close()               //nolint:errcheck
	reply("226 done")
}
