package browser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/rs/zerolog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel/attribute"
)

// Threads maps a thread title to the outer HTML of its transcript.
type Threads = orderedmap.OrderedMap[string, string]

// Contacts maps a contact to their threads.
type Contacts = orderedmap.OrderedMap[string, *Threads]

// Messages maps an organisation tab to its contacts.
type Messages = orderedmap.OrderedMap[string, *Contacts]

const (
	orgTabs     = "ul.resp-tabs-list"
	contactTabs = "ul.Messages-resp-tabs-list"
	threadList  = "div.title-content"
	threadItem  = "li.bili-list-style"
	transcripts = "div.CodeContainer"
)

// MessageCrawler clicks through the tabs of the message page.
type MessageCrawler struct {
	open    func(ctx context.Context) (Session, error)
	wait    time.Duration
	timeout time.Duration
	logger  zerolog.Logger
}

type CrawlerOption func(*MessageCrawler)

// WithSessionFactory replaces the headless Chrome session.
func WithSessionFactory(open func(ctx context.Context) (Session, error)) CrawlerOption {
	return func(m *MessageCrawler) { m.open = open }
}

func WithCrawlerLogger(l zerolog.Logger) CrawlerOption {
	return func(m *MessageCrawler) { m.logger = l }
}

func NewMessageCrawler(cfg *global.BrowserConfig, opts ...CrawlerOption) *MessageCrawler {
	m := &MessageCrawler{
		open: func(context.Context) (Session, error) {
			return NewChrome(cfg)
		},
		wait:    cfg.Wait,
		timeout: cfg.Timeout,
		logger:  global.Logger.With().Str("component", "browser").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Crawl opens url and returns the transcript HTML of every thread. Tabs
// are clicked in page order and read back by index.
func (m *MessageCrawler) Crawl(ctx context.Context, url string) (*Messages, error) {
	ctx, span := global.Tracer("browser").Start(ctx, "browser.messages")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	s, err := m.open(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer s.Close()

	msgs, err := m.crawl(ctx, s, url)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return msgs, nil
}

func (m *MessageCrawler) crawl(ctx context.Context, s Session, url string) (*Messages, error) {
	if err := s.Navigate(ctx, url); err != nil {
		return nil, err
	}

	orgs, err := s.Strings(ctx, texts(nth(orgTabs, 0), "li"))
	if err != nil {
		return nil, err
	}

	msgs := orderedmap.New[string, *Contacts]()
	for k, org := range orgs {
		if err := m.click(ctx, s, nth(orgTabs, 0), "li", k, m.wait); err != nil {
			return nil, err
		}
		names, err := s.Strings(ctx, texts(nth(contactTabs, k), "li"))
		if err != nil {
			return nil, err
		}

		contacts := orderedmap.New[string, *Threads]()
		msgs.Set(org, contacts)
		for j, name := range names {
			if err := m.click(ctx, s, nth(contactTabs, k), "li", j, m.wait); err != nil {
				return nil, err
			}
			threads, err := m.threads(ctx, s)
			if err != nil {
				return nil, err
			}
			contacts.Set(name, threads)
			m.logger.Debug().
				Str("org", org).
				Str("contact", name).
				Int("threads", threads.Len()).
				Msg("contact crawled")
		}
	}
	return msgs, nil
}

func (m *MessageCrawler) threads(ctx context.Context, s Session) (*Threads, error) {
	list := nth(threadList, 0)
	titles, err := s.Strings(ctx, texts(list, threadItem))
	if err != nil {
		return nil, err
	}

	threads := orderedmap.New[string, string]()
	for i, title := range titles {
		if err := m.click(ctx, s, list, threadItem, i, m.wait/10); err != nil {
			return nil, err
		}
		html, err := s.String(ctx, outerHTML(transcripts, i))
		if err != nil {
			return nil, err
		}
		threads.Set(title, html)
	}
	return threads, nil
}

func (m *MessageCrawler) click(ctx context.Context, s Session, parent, item string, i int, wait time.Duration) error {
	if err := s.Exec(ctx, click(parent, item, i)); err != nil {
		return err
	}
	return sleep(ctx, wait)
}

// nth is a script expression for the i-th element matching selector.
func nth(selector string, i int) string {
	return fmt.Sprintf("document.querySelectorAll(%s)[%d]", strconv.Quote(selector), i)
}

func texts(parent, item string) string {
	return fmt.Sprintf("Array.from(%s.querySelectorAll(%s)).map(e => e.innerText.trim())",
		parent, strconv.Quote(item))
}

func click(parent, item string, i int) string {
	return fmt.Sprintf("(() => { const e = %s.querySelectorAll(%s)[%d]; e.scrollIntoView(); e.click(); })()",
		parent, strconv.Quote(item), i)
}

func outerHTML(selector string, i int) string {
	return nth(selector, i) + ".outerHTML"
}
