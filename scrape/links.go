package scrape

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// hrefs returns the href attribute of every anchor in an HTML document, in document order.
func hrefs(r io.Reader) ([]string, error) {
	var links []string
	tokenizer := html.NewTokenizer(r)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != io.EOF {
				return nil, err
			}
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "href" {
					links = append(links, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}

func volumeLinks(links []string) []string {
	var volumes []string
	for _, link := range links {
		if link == "../" || link == "./" || link == "/" {
			continue
		}
		if strings.HasSuffix(link, "/") {
			volumes = append(volumes, link)
		}
	}
	return volumes
}

func caseLinks(links []string) []string {
	var cases []string
	for _, link := range links {
		if strings.HasSuffix(link, ".json") {
			cases = append(cases, link)
		}
	}
	return cases
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
