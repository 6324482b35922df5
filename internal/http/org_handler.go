package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"orgcache/internal/export"
	"orgcache/internal/models"
	"orgcache/internal/orgcache"
	"orgcache/internal/service"

	"go.uber.org/zap"
)

// Syncer 手动触发同步
type Syncer interface {
	SyncNow(ctx context.Context) (models.SyncRun, error)
}

// RunLister 同步审计记录查询
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// OrgHandler 组织架构只读接口
type OrgHandler struct {
	org    *service.OrgService
	cache  *orgcache.Cache
	syncer Syncer
	runs   RunLister // 未启用数据库时为 nil
	logger *zap.Logger
}

func NewOrgHandler(org *service.OrgService, cache *orgcache.Cache, syncer Syncer, runs RunLister, logger *zap.Logger) *OrgHandler {
	return &OrgHandler{
		org:    org,
		cache:  cache,
		syncer: syncer,
		runs:   runs,
		logger: logger,
	}
}

type leadersView struct {
	Managers map[int]models.Manager `json:"managers"`
	Desc     string                 `json:"desc"`
}

func (h *OrgHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok("ok"))
}

// Users /users/{id}、/users/{id}/data、/users/{id}/leaders
func (h *OrgHandler) Users(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, APIPrefix+"users/")
	if len(parts) == 0 || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, ok := parseID(parts[0])
	if !ok {
		writeJSON(w, http.StatusOK, Fail("invalid user id"))
		return
	}

	if len(parts) == 1 {
		u, found := h.org.GetUser(r.Context(), id)
		if !found {
			writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("user %d not found", id)))
			return
		}
		writeJSON(w, http.StatusOK, Ok(u))
		return
	}

	switch parts[1] {
	case "data":
		data := h.org.GetUserData(id)
		if data.AccountID == 0 {
			writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("user data %d not found", id)))
			return
		}
		writeJSON(w, http.StatusOK, Ok(data))
	case "leaders":
		writeJSON(w, http.StatusOK, Ok(leadersView{
			Managers: h.org.GetUserLeaderMap(id),
			Desc:     h.org.GetUserLeaderDesc(id),
		}))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Departments /departments/{id}[/leaders|/user-ids|/children]、/departments/export
func (h *OrgHandler) Departments(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, APIPrefix+"departments/")
	if len(parts) == 0 || len(parts) > 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if len(parts) == 1 && parts[0] == "export" {
		h.Export(w, r)
		return
	}
	id, ok := parseID(parts[0])
	if !ok {
		writeJSON(w, http.StatusOK, Fail("invalid department id"))
		return
	}

	if len(parts) == 1 {
		d, found := h.org.GetDepartment(r.Context(), id)
		if !found {
			writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("department %d not found", id)))
			return
		}
		writeJSON(w, http.StatusOK, Ok(d))
		return
	}

	q := r.URL.Query()
	switch parts[1] {
	case "leaders":
		managers := h.org.GetDeptLeaderMap(id)
		desc := ""
		if d, found := h.cache.GetDepartment(id); found {
			desc = d.LeaderDesc
		}
		writeJSON(w, http.StatusOK, Ok(leadersView{Managers: managers, Desc: desc}))
	case "user-ids":
		var ids []int
		if all, _ := strconv.ParseBool(q.Get("all")); all {
			ids = h.org.GetDeptAllUserIDs(r.Context(), id)
		} else {
			ids = h.org.GetDeptUserIDs(r.Context(), id)
		}
		writeJSON(w, http.StatusOK, Ok(ids))
	case "children":
		recursive, _ := strconv.ParseBool(q.Get("recursive"))
		writeJSON(w, http.StatusOK, Ok(h.org.GetChildDepartments(r.Context(), id, recursive)))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Export 导出部门及领导解析结果
func (h *OrgHandler) Export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WriteDepartments(&buf, h.cache, h.cache.Engine().Tiers()); err != nil {
		h.logger.Error("WriteDepartments failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=departments.xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Cti /cti/{code}/relations、/cti/{code}/users/{ctiUserCode}
func (h *OrgHandler) Cti(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, APIPrefix+"cti/")
	if len(parts) < 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	code, err := strconv.Atoi(parts[0])
	if err != nil || code < 0 {
		writeJSON(w, http.StatusOK, Fail("invalid cti code"))
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "relations":
		writeJSON(w, http.StatusOK, Ok(h.org.GetCtiRelations(r.Context(), code)))
	case len(parts) == 3 && parts[1] == "users":
		rel, found := h.org.GetCtiRelate(r.Context(), code, parts[2])
		if !found {
			writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("cti user %s not bound", parts[2])))
			return
		}
		writeJSON(w, http.StatusOK, Ok(rel))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// CacheStats 进程缓存各映射大小
func (h *OrgHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.org.Stats()))
}

// SyncNow 忽略时间戳门控立即同步
func (h *OrgHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	run, err := h.syncer.SyncNow(r.Context())
	if err != nil {
		h.logger.Error("SyncNow failed", zap.String("run_id", run.RunID.String()), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("sync failed: %v", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(run))
}

// SyncRuns 最近的同步记录
func (h *OrgHandler) SyncRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, Fail("sync audit is disabled"))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 20)
	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Recent sync runs failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to list sync runs: %v", err)))
		return
	}
	writeJSON(w, http.StatusOK, Ok(runs))
}
