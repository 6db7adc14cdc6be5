// Package evidence checks result screenshots uploaded to object storage.
//
// Moderation tooling writes its findings onto the object as user metadata:
// verdict ("valid" or "rejected"), score ("A-B") and ammo. An object without
// a verdict counts as valid once it exists.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/verification"
)

const (
	metaVerdict = "verdict"
	metaScore   = "score"
	metaAmmo    = "ammo"
)

var ErrMalformedScore = errors.New("score metadata must look like A-B")

// HeadObjectAPI is the part of the S3 client the verifier needs.
type HeadObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Verifier implements verification.Verifier against one bucket.
type Verifier struct {
	Client HeadObjectAPI
	Bucket string
}

// New builds a verifier from static or ambient AWS credentials. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func New(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("evidence bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence store config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Verifier{Client: client, Bucket: cfg.Bucket}, nil
}

var _ verification.Verifier = (*Verifier)(nil)

// Assess looks the evidence object up. A missing object is invalid evidence,
// not an error.
func (v *Verifier) Assess(ctx context.Context, ref string) (verification.Assessment, error) {
	key := v.key(ref)
	if key == "" {
		return verification.Assessment{}, nil
	}
	out, err := v.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		var nk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nk) {
			return verification.Assessment{}, nil
		}
		return verification.Assessment{}, fmt.Errorf("head evidence %s: %w", key, err)
	}
	return assess(out.Metadata)
}

// key accepts a bare key or an s3://bucket/key reference to this bucket.
func (v *Verifier) key(ref string) string {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket != v.Bucket {
			return ""
		}
		return key
	}
	return strings.TrimPrefix(ref, "/")
}

func assess(meta map[string]string) (verification.Assessment, error) {
	get := func(k string) string {
		for mk, mv := range meta {
			if strings.EqualFold(mk, k) {
				return strings.TrimSpace(mv)
			}
		}
		return ""
	}

	a := verification.Assessment{AmmoType: strings.ToLower(get(metaAmmo))}
	switch strings.ToLower(get(metaVerdict)) {
	case "", "valid", "ok", "approved":
		a.Valid = true
	default:
		return a, nil
	}
	if raw := get(metaScore); raw != "" {
		score, err := ParseScore(raw)
		if err != nil {
			return verification.Assessment{}, err
		}
		a.DeclaredScore = &score
	}
	return a, nil
}

// ParseScore reads "A-B" with both sides non-negative.
func ParseScore(raw string) (match.Score, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return match.Score{}, ErrMalformedScore
	}
	a, errA := strconv.Atoi(strings.TrimSpace(left))
	b, errB := strconv.Atoi(strings.TrimSpace(right))
	if errA != nil || errB != nil || a < 0 || b < 0 {
		return match.Score{}, ErrMalformedScore
	}
	return match.Score{A: a, B: b}, nil
}
