package gdrive

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Retry and paging constants.
const (
	defaultMaxRetries = 5
	baseBackoff       = 1 * time.Second
	maxBackoff        = 60 * time.Second
	jitterPercent     = 25
	pageSize          = 1000
	userAgent         = "gdrive-backup/0.1"

	listFields = "nextPageToken, files(id, name, mimeType, modifiedTime, parents, size, md5Checksum)"
	listOrder  = "folder,name,createdTime"
)

// Client is a read-only Google Drive client. It classifies API errors into
// gdrive sentinels and retries throttled and server-side failures with
// exponential backoff.
type Client struct {
	svc        *drive.Service
	logger     *slog.Logger
	maxRetries uint64
	backoff    time.Duration // base backoff; tests shrink it
}

// NewClient builds a Drive client on top of httpClient, which must already
// attach credentials (see NewHTTPClient). Extra options are forwarded to the
// generated service, e.g. option.WithEndpoint in tests.
func NewClient(
	ctx context.Context,
	httpClient *http.Client,
	maxRetries int,
	logger *slog.Logger,
	opts ...option.ClientOption,
) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}

	opts = append([]option.ClientOption{
		option.WithHTTPClient(httpClient),
		option.WithUserAgent(userAgent),
	}, opts...)

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gdrive: creating drive service: %w", err)
	}

	return &Client{
		svc:        svc,
		logger:     logger,
		maxRetries: uint64(maxRetries),
		backoff:    baseBackoff,
	}, nil
}

// Children lazily lists the non-trashed children of folderID, one API page
// at a time. Folders are always yielded; files are restricted to filter.
// An item with unreadable metadata is yielded with its id and name and an
// error wrapping ErrMalformedEntry, and the listing goes on. Any other error
// is yielded with a zero Entry and ends the iteration. Each call starts a
// fresh listing.
func (c *Client) Children(ctx context.Context, folderID string, filter ListFilter) iter.Seq2[Entry, error] {
	query := childrenQuery(folderID, filter)

	return func(yield func(Entry, error) bool) {
		pageToken := ""

		for page := 1; ; page++ {
			var list *drive.FileList

			err := c.withRetry(ctx, "list children", func(ctx context.Context) error {
				call := c.svc.Files.List().
					Context(ctx).
					Q(query).
					Fields(listFields).
					OrderBy(listOrder).
					Spaces("drive").
					PageSize(pageSize)

				if pageToken != "" {
					call = call.PageToken(pageToken)
				}

				var err error
				list, err = call.Do()

				return err
			})
			if err != nil {
				yield(Entry{}, err)
				return
			}

			c.logger.Debug("listed page",
				slog.String("folder_id", folderID),
				slog.Int("page", page),
				slog.Int("entries", len(list.Files)),
			)

			for _, f := range list.Files {
				if !yield(toEntry(f)) {
					return
				}
			}

			if list.NextPageToken == "" {
				return
			}

			pageToken = list.NextPageToken
		}
	}
}

// Download streams the binary content of fileID to w and returns the number
// of bytes written. Only the request is retried; a failure mid-stream is
// returned to the caller.
func (c *Client) Download(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	return c.stream(ctx, "download", fileID, w, func(ctx context.Context) (*http.Response, error) {
		return c.svc.Files.Get(fileID).Context(ctx).Download()
	})
}

// Export streams fileID converted to mimeType to w.
func (c *Client) Export(ctx context.Context, fileID, mimeType string, w io.Writer) (int64, error) {
	return c.stream(ctx, "export", fileID, w, func(ctx context.Context) (*http.Response, error) {
		return c.svc.Files.Export(fileID, mimeType).Context(ctx).Download()
	})
}

func (c *Client) stream(
	ctx context.Context,
	op, fileID string,
	w io.Writer,
	open func(ctx context.Context) (*http.Response, error),
) (int64, error) {
	var resp *http.Response

	err := c.withRetry(ctx, op, func(ctx context.Context) error {
		r, err := open(ctx)
		resp = r

		return err
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		c.logger.Warn("streaming content failed",
			slog.String("op", op),
			slog.String("file_id", fileID),
			slog.Int64("bytes_before_error", n),
			slog.String("error", err.Error()),
		)

		return n, fmt.Errorf("gdrive: %s %s: streaming content: %w", op, fileID, err)
	}

	return n, nil
}

// About returns the signed-in account and its storage quota.
func (c *Client) About(ctx context.Context) (*Account, error) {
	var about *drive.About

	err := c.withRetry(ctx, "about", func(ctx context.Context) error {
		var err error
		about, err = c.svc.About.Get().
			Context(ctx).
			Fields("user(emailAddress, displayName), storageQuota(limit, usage)").
			Do()

		return err
	})
	if err != nil {
		return nil, err
	}

	acct := &Account{}

	if about.User != nil {
		acct.Email = about.User.EmailAddress
		acct.DisplayName = about.User.DisplayName
	}

	if about.StorageQuota != nil {
		acct.QuotaUsed = about.StorageQuota.Usage
		acct.QuotaLimit = about.StorageQuota.Limit
	}

	return acct, nil
}

// withRetry runs fn, retrying throttled and 5xx failures with capped,
// jittered exponential backoff. The returned error is always classified.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := retry.NewExponential(c.backoff)
	b = retry.WithCappedDuration(maxBackoff, b)
	b = retry.WithJitterPercent(jitterPercent, b)
	b = retry.WithMaxRetries(c.maxRetries, b)

	attempt := 0

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++

		err := classify(op, fn(ctx))
		if err == nil {
			return nil
		}

		if isRetryable(err) {
			c.logger.Warn("retrying drive request",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)

			return retry.RetryableError(err)
		}

		return err
	})
}

// childrenQuery builds the files.list q parameter for folderID.
func childrenQuery(folderID string, filter ListFilter) string {
	var b strings.Builder

	fmt.Fprintf(&b, "'%s' in parents and trashed = false", escapeQuery(folderID))

	var bounds []string
	if !filter.ModifiedFrom.IsZero() {
		bounds = append(bounds, fmt.Sprintf("modifiedTime >= '%s'", formatQueryTime(filter.ModifiedFrom)))
	}

	if !filter.ModifiedBefore.IsZero() {
		bounds = append(bounds, fmt.Sprintf("modifiedTime < '%s'", formatQueryTime(filter.ModifiedBefore)))
	}

	if len(bounds) > 0 {
		fmt.Fprintf(&b, " and (mimeType = '%s' or (%s))", MimeFolder, strings.Join(bounds, " and "))
	}

	return b.String()
}

func formatQueryTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// escapeQuery escapes a literal for use inside single quotes in a Drive query.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// toEntry normalizes a drive.File.
func toEntry(f *drive.File) (Entry, error) {
	e := Entry{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		IsFolder:    f.MimeType == MimeFolder,
		Size:        f.Size,
		MD5Checksum: f.Md5Checksum,
	}

	if len(f.Parents) > 0 {
		e.ParentID = f.Parents[0]
	}

	if f.ModifiedTime != "" {
		t, err := time.Parse(time.RFC3339Nano, f.ModifiedTime)
		if err != nil {
			return e, fmt.Errorf("%w: parsing modifiedTime of %s: %w", ErrMalformedEntry, f.Id, err)
		}

		e.ModifiedAt = t.UTC()
	}

	return e, nil
}
