package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"trendai/internal/core"
	"trendai/internal/services"
)

// handleTrend serves the rising/stable/falling report of dim. Every name in
// required must be present in the query.
func (s *Server) handleTrend(dim core.Dimension, required ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()
		for _, name := range required {
			if _, err := RequireParam(query, name); err != nil {
				FromError(ctx, err).Write(w)
				return
			}
		}

		c, err := ParseCriteria(query)
		if err != nil {
			FromError(ctx, err).Write(w)
			return
		}

		report, err := s.trends.Report(ctx, dim, c)
		if err != nil {
			FromError(ctx, err).Write(w)
			return
		}
		NewJSONResponse().Data(report).Write(w)
	}
}

// handleItemDetail serves the folded detail breakdown.
func (s *Server) handleItemDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, fold, err := criteriaAndFold(r)
	if err != nil {
		FromError(ctx, err).Write(w)
		return
	}

	breakdown, err := s.trends.Breakdown(ctx, core.DimDetail, c, fold.MaxItems, fold.Threshold)
	if err != nil {
		FromError(ctx, err).Write(w)
		return
	}
	NewJSONResponse().Data(breakdown).Write(w)
}

func (s *Server) handleMoodRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, fold, err := criteriaAndFold(r)
	if err != nil {
		FromError(ctx, err).Write(w)
		return
	}

	mood, err := s.trends.MoodBreakdown(ctx, c, fold.MaxItems, fold.Threshold)
	if err != nil {
		FromError(ctx, err).Write(w)
		return
	}
	NewJSONResponse().Data(mood).Write(w)
}

func criteriaAndFold(r *http.Request) (core.Criteria, FoldParams, error) {
	query := r.URL.Query()
	c, err := ParseCriteria(query)
	if err != nil {
		return c, FoldParams{}, err
	}
	fold, err := ParseFoldParams(query)
	return c, fold, err
}

// handleMoodKeywords serves keywords as ordered groups under data:
// [{name, looks: [{name, keywords}]}]. Clients written against the older
// top-level {"categories": {cate1: {cate2: [keyword]}}} map must rebuild it
// from the groups.
func (s *Server) handleMoodKeywords(w http.ResponseWriter, r *http.Request) {
	groups, err := s.trends.MoodKeywords(r.Context())
	if err != nil {
		FromError(r.Context(), err).Write(w)
		return
	}
	NewJSONResponse().Data(groups).Write(w)
}

// handleItemTypeMeta serves the available periods. With with_keywords=1 the
// grouped mood keywords are loaded alongside as {meta, keywords}.
// years and months are nested under data, not at the top level of the
// envelope as older dashboard builds expect.
func (s *Server) handleItemTypeMeta(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ParseBool(r.URL.Query(), "with_keywords") {
		meta, groups, err := s.trends.MetaWithKeywords(ctx)
		if err != nil {
			FromError(ctx, err).Write(w)
			return
		}
		NewJSONResponse().Data(map[string]any{"meta": meta, "keywords": groups}).Write(w)
		return
	}

	meta, err := s.trends.Meta(ctx)
	if err != nil {
		FromError(ctx, err).Write(w)
		return
	}
	NewJSONResponse().Data(meta).Write(w)
}

type categoryItem struct {
	CategoryL1 string `json:"category_l1"`
}

func (s *Server) handleItemTypeCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.trends.Categories(r.Context())
	if err != nil {
		FromError(r.Context(), err).Write(w)
		return
	}
	items := make([]categoryItem, 0, len(cats))
	for _, c := range cats {
		items = append(items, categoryItem{CategoryL1: c})
	}
	NewJSONResponse().Data(items).Write(w)
}

// handleImages serves the gallery for one value of dim.
func (s *Server) handleImages(dim core.Dimension) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()

		value, err := RequireParam(query, "value")
		if err != nil {
			FromError(ctx, err).Write(w)
			return
		}
		c, err := ParseCriteria(query)
		if err != nil {
			FromError(ctx, err).Write(w)
			return
		}
		limit, err := ParseLimit(query)
		if err != nil {
			FromError(ctx, err).Write(w)
			return
		}

		images, err := s.trends.Images(ctx, dim, value, c, limit)
		if err != nil {
			FromError(ctx, err).Write(w)
			return
		}
		NewJSONResponse().Data(images).Write(w)
	}
}

// handleSnapshot serves the latest persisted report for a dimension and month.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dim, err := core.ParseDimension(r.PathValue("dimension"))
	if err != nil {
		FromError(ctx, err).Write(w)
		return
	}
	p, err := ParsePeriod(r.URL.Query())
	if err != nil {
		FromError(ctx, err).Write(w)
		return
	}

	snap, err := s.trends.Snapshot(ctx, dim, p)
	if err != nil {
		FromError(ctx, err).Write(w)
		return
	}
	NewJSONResponse().Data(snap).Write(w)
}

// RefreshRequest is the optional body of POST /api/trends/refresh.
// Missing fields fall back to the query string, then to the current month.
type RefreshRequest struct {
	Dimension string `json:"dimension"`
	Year      int    `json:"post_year"`
	Month     int    `json:"post_month"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.imports == nil {
		FromError(ctx, services.ErrRefreshUnavailable).Write(w)
		return
	}

	req, err := decodeRefreshRequest(w, r)
	if err != nil {
		BadRequestError("invalid request body: " + err.Error()).RequestID(ctx).Write(w)
		return
	}

	var dim core.Dimension
	if req.Dimension != "" {
		if dim, err = core.ParseDimension(req.Dimension); err != nil {
			FromError(ctx, err).Write(w)
			return
		}
	}

	now := time.Now()
	p := core.Period{Year: req.Year, Month: req.Month}
	if p.Year == 0 && p.Month == 0 {
		p = core.Period{Year: now.Year(), Month: int(now.Month())}
	}

	msg, err := s.imports.RequestRefresh(ctx, dim, p)
	if err != nil {
		FromError(ctx, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusAccepted).
		Message("refresh requested").
		Data(msg).
		RequestID(ctx).
		Write(w)
}

func decodeRefreshRequest(w http.ResponseWriter, r *http.Request) (RefreshRequest, error) {
	var req RefreshRequest
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, err
		}
	}

	query := r.URL.Query()
	if req.Dimension == "" {
		req.Dimension = filterValue(query.Get("dimension"))
	}
	if req.Year == 0 {
		year, err := optionalInt(query, "post_year")
		if err != nil {
			return req, err
		}
		req.Year = year
	}
	if req.Month == 0 {
		month, err := optionalInt(query, "post_month")
		if err != nil {
			return req, err
		}
		req.Month = month
	}
	return req, nil
}
