// Package storage stores rendered audio in a Supabase Storage bucket.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"path"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	// per attempt; long renders can be tens of MB
	uploadTimeout = 180 * time.Second

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	logBodyLimit = 200
)

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:     true,
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// Storage talks to the Supabase Storage REST API for a single bucket.
type Storage struct {
	baseURL    string
	serviceKey string
	Bucket     string
	client     *http.Client
	retryBase  time.Duration
}

func New(baseURL, serviceKey, bucket string) *Storage {
	return &Storage{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryBase: baseRetryDelay,
	}
}

// GenerateStoragePath returns the object path for a file belonging to a render.
func (s *Storage) GenerateStoragePath(renderID uuid.UUID, filename string) string {
	return path.Join("renders", renderID.String(), filename)
}

// Upload writes data to objectPath, overwriting any existing object. Transient
// network failures and 408/429/5xx gateway responses are retried with
// exponential backoff; any other status fails immediately.
func (s *Storage) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	url := s.objectURL("object", objectPath)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(s.retryBase, attempt)
			log.Printf("[Storage] Retrying %s (%d/%d) in %v: %v", objectPath, attempt, maxRetries, delay, lastErr)

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		retry, err := s.put(ctx, url, data, contentType)
		if err == nil {
			if attempt > 0 {
				log.Printf("[Storage] Uploaded %s on attempt %d", objectPath, attempt+1)
			}
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

// put makes one upload attempt and reports whether a failure is worth retrying.
func (s *Storage) put(ctx context.Context, url string, data []byte, contentType string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return isTransient(err), fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return false, nil
	}

	body, _ := io.ReadAll(resp.Body)
	if retryableStatus[resp.StatusCode] {
		log.Printf("[Storage] Upload returned %d: %s", resp.StatusCode, truncate(string(body), logBodyLimit))
	}
	return retryableStatus[resp.StatusCode], fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, body)
}

// GetSignedURL returns a URL granting read access to objectPath for expiresIn seconds.
func (s *Storage) GetSignedURL(ctx context.Context, objectPath string, expiresIn int) (string, error) {
	payload, err := json.Marshal(struct {
		ExpiresIn int `json:"expiresIn"`
	}{expiresIn})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL("object/sign", objectPath), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", objectPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("signing failed with status %d: %s", resp.StatusCode, body)
	}

	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("failed to parse signed URL response: %w", err)
	}
	if signed.SignedURL == "" {
		return "", errors.New("signed URL response was empty")
	}

	return s.baseURL + signed.SignedURL, nil
}

func (s *Storage) objectURL(endpoint, objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/%s/%s/%s", s.baseURL, endpoint, s.Bucket, objectPath)
}

func (s *Storage) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
}

// retryDelay is base * 2^(attempt-1), capped at maxRetryDelay, plus up to 25% jitter.
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := math.Min(float64(base)*math.Pow(2, float64(attempt-1)), float64(maxRetryDelay))
	return time.Duration(delay + delay*0.25*rand.Float64())
}

// isTransient reports whether a transport error is likely to succeed on retry.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
