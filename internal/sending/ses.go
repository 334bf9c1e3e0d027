package sending

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/crm-automation/internal/pkg/logger"
)

// sesAPI is the subset of the SES v2 client the transport calls.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESOptions configures an SESTransport.
type SESOptions struct {
	Region    string
	AccessKey string
	SecretKey string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// SESTransport sends email through AWS SES v2.
type SESTransport struct {
	client  sesAPI
	from    string
	timeout time.Duration
}

// NewSESTransport builds an SES client. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewSESTransport(ctx context.Context, opts SESOptions) (*SESTransport, error) {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.FromEmail == "" {
		return nil, fmt.Errorf("ses: from address is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return newSESTransport(sesv2.NewFromConfig(cfg), opts), nil
}

func newSESTransport(client sesAPI, opts SESOptions) *SESTransport {
	from := opts.FromEmail
	if opts.FromName != "" {
		from = fmt.Sprintf("%s <%s>", opts.FromName, opts.FromEmail)
	}
	return &SESTransport{client: client, from: from, timeout: opts.Timeout}
}

// Send delivers msg. Provider errors are returned wrapped.
func (t *SESTransport) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	content := &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")}
	body := &types.Body{}
	if msg.IsHTML {
		body.Html = content
	} else {
		body.Text = content
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(t.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
		EmailTags: sesTags(msg.Tags),
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	logger.Debug("[SES] sent", "email", msg.To, "message_id", aws.ToString(out.MessageId))
	return nil
}

// sesTags converts tags into SES message tags in a stable order. SES only
// accepts ASCII letters, digits, underscores and dashes; other characters
// are replaced.
func sesTags(tags map[string]string) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.MessageTag, 0, len(keys))
	for _, k := range keys {
		v := tags[k]
		if v == "" {
			continue
		}
		out = append(out, types.MessageTag{Name: aws.String(sanitizeTag(k)), Value: aws.String(sanitizeTag(v))})
	}
	return out
}

func sanitizeTag(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
