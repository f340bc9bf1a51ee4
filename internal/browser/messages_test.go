package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	orgs     []string
	contacts map[int][]string
	threads  map[string][]string

	org     int
	contact string
	visited string
	closed  bool
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.visited = url
	return nil
}

func (f *fakeSession) Exec(_ context.Context, js string) error {
	for i := range f.orgs {
		if js == click(nth(orgTabs, 0), "li", i) {
			f.org = i
			return nil
		}
	}
	for j, name := range f.contacts[f.org] {
		if js == click(nth(contactTabs, f.org), "li", j) {
			f.contact = name
			return nil
		}
	}
	return nil
}

func (f *fakeSession) String(_ context.Context, js string) (string, error) {
	for i := range f.threads[f.contact] {
		if js == outerHTML(transcripts, i) {
			return fmt.Sprintf(`<div class="CodeContainer">%s-%d</div>`, f.contact, i), nil
		}
	}
	return "", errors.New("unexpected script: " + js)
}

func (f *fakeSession) Strings(_ context.Context, js string) ([]string, error) {
	switch js {
	case texts(nth(orgTabs, 0), "li"):
		return f.orgs, nil
	case texts(nth(contactTabs, f.org), "li"):
		return f.contacts[f.org], nil
	case texts(nth(threadList, 0), threadItem):
		return f.threads[f.contact], nil
	}
	return nil, errors.New("unexpected script: " + js)
}

func (f *fakeSession) Close() {
	f.closed = true
}

func TestMessageCrawler(t *testing.T) {
	fake := &fakeSession{
		orgs: []string{"星穹列车", "空间站"},
		contacts: map[int][]string{
			0: {"三月七", "丹恒"},
			1: {"艾丝妲"},
		},
		threads: map[string][]string{
			"三月七": {"拍照", "列车"},
			"丹恒":  {"资料室"},
			"艾丝妲": {},
		},
	}

	m := NewMessageCrawler(&global.BrowserConfig{},
		WithSessionFactory(func(context.Context) (Session, error) { return fake, nil }))

	msgs, err := m.Crawl(context.Background(), "https://wiki.biligame.com/sr/短信")
	require.NoError(t, err)
	require.True(t, fake.closed)
	require.Equal(t, "https://wiki.biligame.com/sr/短信", fake.visited)

	var orgs []string
	for p := msgs.Oldest(); p != nil; p = p.Next() {
		orgs = append(orgs, p.Key)
	}
	require.Equal(t, []string{"星穹列车", "空间站"}, orgs)

	train := msgs.Value("星穹列车")
	require.Equal(t, 2, train.Len())
	march := train.Value("三月七")
	require.Equal(t, `<div class="CodeContainer">三月七-0</div>`, march.Value("拍照"))
	require.Equal(t, `<div class="CodeContainer">三月七-1</div>`, march.Value("列车"))
	require.Equal(t, `<div class="CodeContainer">丹恒-0</div>`, train.Value("丹恒").Value("资料室"))

	station := msgs.Value("空间站")
	require.Equal(t, 0, station.Value("艾丝妲").Len())
}

func TestMessageCrawlerSessionError(t *testing.T) {
	m := NewMessageCrawler(&global.BrowserConfig{},
		WithSessionFactory(func(context.Context) (Session, error) {
			return nil, errors.New("no chrome")
		}))
	_, err := m.Crawl(context.Background(), "https://example.com")
	require.Error(t, err)
}

func TestScripts(t *testing.T) {
	tcs := []struct {
		Name   string
		Script string
		Expect string
	}{
		{
			Name:   "nth",
			Script: nth(orgTabs, 2),
			Expect: `document.querySelectorAll("ul.resp-tabs-list")[2]`,
		},
		{
			Name:   "outer html",
			Script: outerHTML(transcripts, 1),
			Expect: `document.querySelectorAll("div.CodeContainer")[1].outerHTML`,
		},
		{
			Name:   "texts",
			Script: texts(nth(threadList, 0), threadItem),
			Expect: `Array.from(document.querySelectorAll("div.title-content")[0].querySelectorAll("li.bili-list-style")).map(e => e.innerText.trim())`,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			require.Equal(t, tc.Expect, tc.Script)
		})
	}
}
