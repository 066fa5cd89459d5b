package collector

import (
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"
)

const maxAttempts = 5

type apiError struct {
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.message)
}

func isRetryable(err error) bool {
	ae, ok := err.(*apiError)
	if !ok {
		return true // network errors are retryable
	}
	return ae.statusCode == 429 || ae.statusCode >= 500
}

// doWithRetry executes the request up to maxAttempts times with exponential
// backoff on 429/5xx/network errors. The request must be re-issuable
// (GetBody set or no body).
func doWithRetry(client *http.Client, req *http.Request) ([]byte, error) {
	var body []byte
	var err error
	for attempt := range maxAttempts {
		body, err = do(client, req)
		if err == nil {
			return body, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		if attempt < maxAttempts-1 {
			wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			log.Printf("  retrying in %s: %v", wait, err)
			time.Sleep(wait)
			if req.GetBody != nil {
				req.Body, _ = req.GetBody()
			}
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxAttempts, err)
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == 401 {
		return nil, &apiError{statusCode: 401, message: "authentication failed — check your credentials"}
	}
	if resp.StatusCode != 200 {
		return nil, &apiError{statusCode: resp.StatusCode, message: string(body)}
	}
	return body, nil
}
