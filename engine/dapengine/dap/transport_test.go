package dap

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func TestEncodeFrame(t *testing.T) {
	var buf bytes.Buffer
	content := json.RawMessage(`{"test": "value"}`)

	frame := &Frame{ContentLength: len(content), Content: content}
	if err := encodeFrame(&buf, frame); err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "Content-Length: 17\r\n\r\n") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.HasSuffix(out, `{"test": "value"}`) {
		t.Errorf("unexpected body: %q", out)
	}
}

func TestEncodeFrameWithContentType(t *testing.T) {
	var buf bytes.Buffer
	content := json.RawMessage(`{}`)

	frame := &Frame{ContentLength: len(content), ContentType: "application/json", Content: content}
	if err := encodeFrame(&buf, frame); err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	if !strings.Contains(buf.String(), "Content-Type: application/json\r\n") {
		t.Errorf("missing Content-Type header: %q", buf.String())
	}
}

func TestDecodeFrame(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("Content-Length: 17\r\n\r\n{\"test\": \"value\"}"))

	frame, err := decodeFrame(in)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if frame.ContentLength != 17 {
		t.Errorf("ContentLength = %d, want 17", frame.ContentLength)
	}

	var parsed map[string]string
	if err := json.Unmarshal(frame.Content, &parsed); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if parsed["test"] != "value" {
		t.Errorf("body[test] = %q, want %q", parsed["test"], "value")
	}
}

func TestDecodeFrameWithContentType(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("Content-Length: 2\r\nContent-Type: application/json\r\n\r\n{}"))

	frame, err := decodeFrame(in)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if frame.ContentType != "application/json" {
		t.Errorf("ContentType = %q, want application/json", frame.ContentType)
	}
}

func TestDecodeFrameMissingContentLength(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("Content-Type: application/json\r\n\r\n{}"))
	if _, err := decodeFrame(in); err == nil {
		t.Error("expected an error for a frame missing Content-Length")
	}
}

func TestDecodeFrameMalformedHeader(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("NotAHeader\r\n\r\n"))
	if _, err := decodeFrame(in); err == nil {
		t.Error("expected an error for a malformed header line")
	}
}

func TestDecodeFrameRejectsOversizedContentLength(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("Content-Length: 999999999999\r\n\r\n"))
	if _, err := decodeFrame(in); err == nil {
		t.Error("expected an error for a Content-Length past the frame limit")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	content := json.RawMessage(`{"seq": 1, "type": "request", "command": "initialize"}`)
	original := &Frame{ContentLength: len(content), Content: content}

	var buf bytes.Buffer
	if err := encodeFrame(&buf, original); err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}

	result, err := decodeFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if result.ContentLength != original.ContentLength {
		t.Errorf("ContentLength = %d, want %d", result.ContentLength, original.ContentLength)
	}
	if !bytes.Equal(result.Content, original.Content) {
		t.Errorf("Content = %s, want %s", result.Content, original.Content)
	}
}

func TestSocketTransportEchoesOverLoopback(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		server := NewSocketTransportFromConn(conn)
		frame, err := server.Receive()
		if err != nil {
			t.Errorf("server receive: %v", err)
			return
		}
		if err := server.Send(frame); err != nil {
			t.Errorf("server send: %v", err)
		}
	}()

	transport, err := NewSocketTransport(listener.Addr().String())
	if err != nil {
		t.Fatalf("NewSocketTransport: %v", err)
	}
	defer transport.Close()

	content := json.RawMessage(`{"test": "echo"}`)
	if err := transport.Send(&Frame{ContentLength: len(content), Content: content}); err != nil {
		t.Fatalf("send: %v", err)
	}

	result, err := transport.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !bytes.Equal(result.Content, content) {
		t.Errorf("echo = %s, want %s", result.Content, content)
	}
	<-done
}

func TestRawTransportEchoesOverPipes(t *testing.T) {
	// Client writes to pw1 / reads from pr2; server reads from pr1 / writes to pw2.
	pr1, pw1 := io.Pipe()
	pr2, pw2 := io.Pipe()
	defer pr1.Close()
	defer pw1.Close()
	defer pr2.Close()
	defer pw2.Close()

	client := NewRawTransport(&halfDuplexPipe{r: pr2, w: pw1})
	server := NewRawTransport(&halfDuplexPipe{r: pr1, w: pw2})

	done := make(chan struct{})
	go func() {
		defer close(done)
		frame, err := server.Receive()
		if err != nil {
			t.Errorf("server receive: %v", err)
			return
		}
		if err := server.Send(frame); err != nil {
			t.Errorf("server send: %v", err)
		}
	}()

	content := json.RawMessage(`{"hello": "world"}`)
	if err := client.Send(&Frame{ContentLength: len(content), Content: content}); err != nil {
		t.Fatalf("client send: %v", err)
	}

	results := make(chan *Frame)
	errs := make(chan error, 1)
	go func() {
		frame, err := client.Receive()
		if err != nil {
			errs <- err
			return
		}
		results <- frame
	}()

	select {
	case result := <-results:
		if result.ContentLength != 18 {
			t.Errorf("ContentLength = %d, want 18", result.ContentLength)
		}
		if !bytes.Equal(result.Content, content) {
			t.Errorf("Content = %s, want %s", result.Content, content)
		}
	case err := <-errs:
		t.Fatalf("client receive: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the echoed frame")
	}
	<-done
}

// halfDuplexPipe pairs independent read and write ends into one
// io.ReadWriteCloser, the shape a RawTransport needs.
type halfDuplexPipe struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (p *halfDuplexPipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *halfDuplexPipe) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *halfDuplexPipe) Close() error {
	p.r.Close()
	return p.w.Close()
}
