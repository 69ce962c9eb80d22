package source

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

const postPathPrefix = "/post/show/"

// Post - данные одной страницы поста.
type Post struct {
	// ID - id поста.
	ID int64

	// Score - рейтинг поста.
	Score int64

	// HighRes - ссылка на оригинал в максимальном разрешении (пусто, если нет).
	HighRes string

	// ParentID - id родительского поста (0, если родителя нет).
	ParentID int64

	// ChildIDs - id дочерних постов в порядке документа.
	ChildIDs []int64
}

// PostPath возвращает путь страницы поста.
func PostPath(id int64) string {
	return postPathPrefix + strconv.FormatInt(id, 10)
}

// ParseListing извлекает id постов из листинга в порядке документа.
func ParseListing(markup string) ([]int64, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, apperr.Parse("source.listing", err)
	}

	list := doc.Find("ul#post-list-posts").First()
	if list.Length() == 0 {
		return nil, apperr.Parsef("source.listing", "не найден ul#post-list-posts")
	}

	var (
		ids      []int64
		parseErr error
	)
	list.ChildrenFiltered("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		raw, ok := li.Attr("id")
		if !ok {
			parseErr = apperr.Parsef("source.listing", "элемент списка без id")
			return false
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(raw), "p"), 10, 64)
		if err != nil {
			parseErr = apperr.Parsef("source.listing", "некорректный id %q: %v", raw, err)
			return false
		}
		ids = append(ids, id)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return ids, nil
}

// ParsePost разбирает страницу поста id.
// Отсутствие рейтинга - ошибка; отсутствие ссылки highres оставляет HighRes пустым.
func ParsePost(markup string, id int64) (Post, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Post{}, apperr.Parse("source.post", err)
	}

	p := Post{ID: id}

	scoreSel := doc.Find(fmt.Sprintf("span#post-score-%d", id)).First()
	if scoreSel.Length() == 0 {
		return Post{}, apperr.Parsef("source.post", "пост %d: не найден span#post-score-%d", id, id)
	}
	p.Score, err = strconv.ParseInt(strings.TrimSpace(scoreSel.Text()), 10, 64)
	if err != nil {
		return Post{}, apperr.Parsef("source.post", "пост %d: некорректный рейтинг %q", id, scoreSel.Text())
	}

	if href, ok := doc.Find("a#highres").First().Attr("href"); ok {
		p.HighRes = strings.TrimSpace(href)
	}

	doc.Find(".status-notice").Each(func(_ int, notice *goquery.Selection) {
		switch {
		case noticeMentions(notice, "parent post"):
			if p.ParentID != 0 {
				return
			}
			notice.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
				if pid, ok := postLinkID(a); ok && pid != id {
					p.ParentID = pid
					return false
				}
				return true
			})
		case noticeMentions(notice, "child post"):
			notice.Find("a").Each(func(_ int, a *goquery.Selection) {
				if cid, ok := postLinkID(a); ok && cid != id && !containsID(p.ChildIDs, cid) {
					p.ChildIDs = append(p.ChildIDs, cid)
				}
			})
		}
	})

	return p, nil
}

// noticeMentions проверяет, есть ли в уведомлении ссылка с текстом phrase.
func noticeMentions(notice *goquery.Selection, phrase string) bool {
	found := false
	notice.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.Contains(a.Text(), phrase) {
			found = true
			return false
		}
		return true
	})
	return found
}

// postLinkID извлекает id из ссылки вида /post/show/<id>.
func postLinkID(a *goquery.Selection) (int64, bool) {
	href, ok := a.Attr("href")
	if !ok {
		return 0, false
	}
	href = strings.TrimSpace(href)
	i := strings.Index(href, postPathPrefix)
	if i < 0 {
		return 0, false
	}
	rest := href[i+len(postPathPrefix):]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
