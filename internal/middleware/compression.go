package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // minimum response size to compress, in bytes
	CompressionLevel int      // gzip level 1-9
	ContentTypes     []string // response content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
		},
	}
}

// CompressionStats counts compressed responses and bytes saved
type CompressionStats struct {
	Compressed   int64
	Skipped      int64
	BytesIn      int64
	BytesOut     int64
	WriterErrors int64
}

// Compression gzips response bodies for clients that accept it
type Compression struct {
	config CompressionConfig
	stats  CompressionStats
	pool   sync.Pool
}

func NewCompression(config CompressionConfig) *Compression {
	if config.CompressionLevel < gzip.HuffmanOnly || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = gzip.DefaultCompression
	}
	cm := &Compression{config: config}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler buffers the response and compresses it once it is known to be
// large enough and of a compressible type.
func (cm *Compression) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !acceptsGzip(c.Request) || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		bw := &bufferedWriter{ResponseWriter: c.Writer}
		c.Writer = bw
		c.Next()
		c.Writer = bw.ResponseWriter

		body := bw.buf.Bytes()
		header := c.Writer.Header()
		header.Add("Vary", "Accept-Encoding")

		if len(body) < cm.config.MinSize || header.Get("Content-Encoding") != "" || !cm.compressible(header.Get("Content-Type")) {
			atomic.AddInt64(&cm.stats.Skipped, 1)
			if len(body) > 0 {
				_, _ = c.Writer.Write(body)
			}
			return
		}

		var out bytes.Buffer
		gz := cm.pool.Get().(*gzip.Writer)
		gz.Reset(&out)
		_, err := gz.Write(body)
		if err == nil {
			err = gz.Close()
		}
		cm.pool.Put(gz)

		if err != nil {
			atomic.AddInt64(&cm.stats.WriterErrors, 1)
			slog.Warn("Response compression failed", "path", c.Request.URL.Path, "error", err)
			_, _ = c.Writer.Write(body)
			return
		}

		header.Set("Content-Encoding", "gzip")
		header.Set("Content-Length", strconv.Itoa(out.Len()))
		_, _ = c.Writer.Write(out.Bytes())

		atomic.AddInt64(&cm.stats.Compressed, 1)
		atomic.AddInt64(&cm.stats.BytesIn, int64(len(body)))
		atomic.AddInt64(&cm.stats.BytesOut, int64(out.Len()))
	}
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (cm *Compression) compressible(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

// Stats returns compression counters and the overall ratio
func (cm *Compression) Stats() map[string]interface{} {
	in := atomic.LoadInt64(&cm.stats.BytesIn)
	out := atomic.LoadInt64(&cm.stats.BytesOut)

	ratio := 0.0
	if in > 0 {
		ratio = float64(out) / float64(in)
	}

	return map[string]interface{}{
		"compressed":        atomic.LoadInt64(&cm.stats.Compressed),
		"skipped":           atomic.LoadInt64(&cm.stats.Skipped),
		"bytes_in":          in,
		"bytes_out":         out,
		"compression_ratio": ratio,
		"writer_errors":     atomic.LoadInt64(&cm.stats.WriterErrors),
	}
}

// bufferedWriter holds the body back until the handler chain finishes.
// Status and headers still go to the wrapped writer, which defers sending
// them until the first real write.
type bufferedWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	return w.buf.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

func (w *bufferedWriter) Written() bool {
	return w.buf.Len() > 0 || w.ResponseWriter.Written()
}

func (w *bufferedWriter) Size() int {
	return w.buf.Len()
}
