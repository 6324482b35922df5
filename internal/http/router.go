package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// APIPrefix 组织架构查询接口前缀
const APIPrefix = "/org/api/v1/"

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealthRoutes /healthz
func (r *Router) RegisterHealthRoutes(h *OrgHandler) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Health(w, req)
	})
}

// RegisterOrgRoutes 用户、部门、CTI、缓存状态
func (r *Router) RegisterOrgRoutes(h *OrgHandler) {
	get := func(fn http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			fn(w, req)
		}
	}

	r.Handle(APIPrefix+"users/", get(h.Users))
	r.Handle(APIPrefix+"departments/", get(h.Departments))
	r.Handle(APIPrefix+"cti/", get(h.Cti))
	r.Handle(APIPrefix+"cache/stats", get(h.CacheStats))
}

// RegisterSyncRoutes 手动同步与同步记录
func (r *Router) RegisterSyncRoutes(h *OrgHandler) {
	r.Handle(APIPrefix+"sync", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.SyncNow(w, req)
	})
	r.Handle(APIPrefix+"sync/runs", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.SyncRuns(w, req)
	})
}
