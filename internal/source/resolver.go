package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/apperr"
	"github.com/artemshloyda/popularfeed/internal/model"
)

// Fetcher загружает страницу по пути или абсолютному адресу.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (string, error)
}

// URLResolver превращает ссылку со страницы в абсолютный адрес.
type URLResolver interface {
	URL(ref string) string
}

// Resolver собирает группу изображений: канонический пост и его дочерние.
// Вложенность родитель-потомок на источнике не глубже одного уровня,
// поэтому обход ограничен двумя шагами без рекурсии.
type Resolver struct {
	fetcher Fetcher
	urls    URLResolver
	logger  *zap.Logger
}

// NewResolver создаёт Resolver поверх клиента источника.
func NewResolver(c *Client, logger *zap.Logger) *Resolver {
	return NewResolverWith(c, c, logger)
}

// NewResolverWith создаёт Resolver с произвольными загрузчиком и преобразователем ссылок.
func NewResolverWith(f Fetcher, u URLResolver, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: f, urls: u, logger: logger}
}

// ResolveGroup разрешает группу для поста id.
// Ошибка загрузки или разбора любой страницы группы отменяет всю группу.
func (r *Resolver) ResolveGroup(ctx context.Context, id int64) (model.ImageGroup, error) {
	post, err := r.post(ctx, id)
	if err != nil {
		return model.ImageGroup{}, err
	}

	// Шаг 1: родитель становится каноническим постом
	if post.ParentID != 0 && post.ParentID != id {
		r.logger.Debug("переход к родительскому посту",
			zap.Int64("id", id), zap.Int64("parent", post.ParentID))
		post, err = r.post(ctx, post.ParentID)
		if err != nil {
			return model.ImageGroup{}, err
		}
	}

	canonical, err := r.member(post)
	if err != nil {
		return model.ImageGroup{}, err
	}
	group := model.ImageGroup{
		ID:      post.ID,
		Score:   post.Score,
		Members: []model.Member{canonical},
	}

	// Шаг 2: дочерние посты канонического, их собственные связи не обходятся
	for _, cid := range post.ChildIDs {
		if group.Contains(cid) {
			continue
		}
		child, err := r.post(ctx, cid)
		if err != nil {
			return model.ImageGroup{}, err
		}
		m, err := r.member(child)
		if err != nil {
			return model.ImageGroup{}, err
		}
		group.Members = append(group.Members, m)
		if m.Score > group.Score {
			group.Score = m.Score
		}
	}

	return group, nil
}

func (r *Resolver) post(ctx context.Context, id int64) (Post, error) {
	markup, err := r.fetcher.Fetch(ctx, PostPath(id))
	if err != nil {
		return Post{}, fmt.Errorf("не удалось загрузить пост %d: %w", id, err)
	}
	return ParsePost(markup, id)
}

func (r *Resolver) member(p Post) (model.Member, error) {
	if p.HighRes == "" {
		return model.Member{}, apperr.Parsef("source.resolve", "пост %d: не найдена ссылка a#highres", p.ID)
	}
	return model.Member{ID: p.ID, URL: r.urls.URL(p.HighRes), Score: p.Score}, nil
}
