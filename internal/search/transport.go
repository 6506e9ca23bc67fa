package search

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// signingService is the AWS service name used when signing requests to a
// managed Elasticsearch domain.
const signingService = "es"

// emptyPayloadHash is the SHA-256 of a zero-length body, precomputed since
// most search reads carry no body at all.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// SigV4Transport signs outgoing requests with AWS Signature Version 4.
// Managed Elasticsearch domains reject unsigned requests.
type SigV4Transport struct {
	wrapped     http.RoundTripper
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
}

// NewSigV4Transport wraps an http.RoundTripper with SigV4 signing.
func NewSigV4Transport(wrapped http.RoundTripper, credentials aws.CredentialsProvider, region string) *SigV4Transport {
	return &SigV4Transport{
		wrapped:     wrapped,
		credentials: credentials,
		region:      region,
		signer:      v4.NewSigner(),
	}
}

// RoundTrip implements http.RoundTripper. The original request is never
// mutated; signing happens on a clone.
func (t *SigV4Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	creds, err := t.credentials.Retrieve(ctx)
	if err != nil {
		return nil, err
	}

	signed := req.Clone(ctx)
	hash, err := hashAndRewindBody(signed)
	if err != nil {
		return nil, err
	}

	if err := t.signer.SignHTTP(ctx, creds, signed, hash, signingService, t.region, time.Now()); err != nil {
		return nil, err
	}
	return t.wrapped.RoundTrip(signed)
}

// hashAndRewindBody returns the hex SHA-256 of the request body, leaving a
// replayable copy on the request. SigV4 needs the payload digest up front,
// which means buffering the body once.
func hashAndRewindBody(req *http.Request) (string, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return emptyPayloadHash, nil
	}

	payload, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return "", err
	}

	req.Body = io.NopCloser(bytes.NewReader(payload))
	req.ContentLength = int64(len(payload))

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
