package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"orgcache/common/config"
	"orgcache/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	headerAppToken  = "X-App-Token"
	headerUserToken = "X-User-Token"

	defaultPageSize = 500
)

// isSuccessCode 目录服务业务成功码，0 与 200 均视为成功
func isSuccessCode(code int) bool {
	return code == 0 || code == 200
}

// envelope 目录服务统一响应
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client 基于 resty 的目录服务客户端
type Client struct {
	http     *resty.Client
	signer   *TokenSigner
	pageSize int
	logger   *zap.Logger
}

var _ Directory = (*Client)(nil)

// NewClient 创建目录服务客户端
func NewClient(cfg config.SSOConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Host, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	signer := NewTokenSigner(cfg.JWTSecret)
	if signer == nil {
		logger.Warn("SSO JWT secret not configured, requests are sent without app token")
	}

	return &Client{
		http:     client,
		signer:   signer,
		pageSize: pageSize,
		logger:   logger,
	}
}

// PageSize 分页大小
func (c *Client) PageSize() int { return c.pageSize }

// get 发送 GET 请求并把 data 解码到 out
// path 以 / 结尾，与目录服务路由保持一致
func (c *Client) get(ctx context.Context, path string, query map[string]string, userToken string, out any) error {
	req := c.http.R().SetContext(ctx)
	if c.signer != nil {
		token, err := c.signer.Sign()
		if err != nil {
			return err
		}
		req.SetHeader(headerAppToken, token)
	}
	if userToken != "" {
		req.SetHeader(headerUserToken, userToken)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	var env envelope
	resp, err := req.SetResult(&env).Get("/" + path)
	if err != nil {
		c.logger.Error("SSO request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("sso request %s: %w", path, err)
	}
	if resp.IsError() {
		c.logger.Error("SSO returned error status",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("sso request %s: status %d", path, resp.StatusCode())
	}
	if env.Data == nil && len(resp.Body()) > 0 {
		// 非 JSON 响应时 resty 不会填充 Result
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			c.logger.Error("Failed to decode SSO response", zap.String("path", path), zap.Error(err))
			return fmt.Errorf("sso request %s: decode envelope: %w", path, err)
		}
	}
	if !isSuccessCode(env.Code) {
		// 业务失败仍按 data 解码（通常为空）
		c.logger.Warn("SSO rejected request",
			zap.String("path", path),
			zap.Int("code", env.Code),
			zap.String("msg", env.Msg),
		)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.logger.Error("Failed to decode SSO data",
			zap.String("path", path),
			zap.Int("code", env.Code),
			zap.String("msg", env.Msg),
			zap.Error(err),
		)
		return fmt.Errorf("sso request %s: decode data: %w", path, err)
	}
	return nil
}

func (c *Client) FetchUsersByIDs(ctx context.Context, ids []int) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	if err := c.get(ctx, "user/", map[string]string{"ids": joinInts(ids)}, "", &users); err != nil {
		return []models.User{}, err
	}
	return nonNil(users), nil
}

func (c *Client) FetchUsersPage(ctx context.Context, index int) ([]models.User, error) {
	var users []models.User
	if err := c.get(ctx, "user/page/", c.pageQuery(index), "", &users); err != nil {
		return []models.User{}, err
	}
	return nonNil(users), nil
}

func (c *Client) FetchUserDetailsPage(ctx context.Context, index int) ([]models.UserDetail, error) {
	var details []models.UserDetail
	if err := c.get(ctx, "user/detailPage/", c.pageQuery(index), "", &details); err != nil {
		return []models.UserDetail{}, err
	}
	return nonNil(details), nil
}

func (c *Client) FetchAllDepartments(ctx context.Context) ([]models.DepartmentRef, error) {
	var depts []models.DepartmentRef
	if err := c.get(ctx, "department/", nil, "", &depts); err != nil {
		return []models.DepartmentRef{}, err
	}
	return nonNil(depts), nil
}

func (c *Client) FetchChildDepartments(ctx context.Context, deptID int, recursive bool) ([]models.DepartmentRef, error) {
	var depts []models.DepartmentRef
	path := fmt.Sprintf("department/%d/", deptID)
	if err := c.get(ctx, path, map[string]string{"getAll": strconv.FormatBool(recursive)}, "", &depts); err != nil {
		return []models.DepartmentRef{}, err
	}
	return nonNil(depts), nil
}

func (c *Client) FetchDeptUsers(ctx context.Context, deptID int) ([]models.UserDetail, error) {
	var details []models.UserDetail
	if err := c.get(ctx, fmt.Sprintf("department/%d/users/", deptID), nil, "", &details); err != nil {
		return []models.UserDetail{}, err
	}
	return nonNil(details), nil
}

func (c *Client) FetchDeptUserIDs(ctx context.Context, deptID int) ([]int, error) {
	return c.fetchIDs(ctx, fmt.Sprintf("department/%d/userIds/", deptID))
}

func (c *Client) FetchDeptAllUserIDs(ctx context.Context, deptID int) ([]int, error) {
	return c.fetchIDs(ctx, fmt.Sprintf("department/%d/allUserIds/", deptID))
}

func (c *Client) FetchSubordinateIDs(ctx context.Context, userID int) ([]int, error) {
	return c.fetchIDs(ctx, fmt.Sprintf("user/%d/lower/", userID))
}

func (c *Client) FetchUserDeptDescs(ctx context.Context, userIDs []int) (map[int]string, error) {
	if len(userIDs) == 0 {
		return map[int]string{}, nil
	}
	return c.fetchDescs(ctx, "department/userDesr/", map[string]string{"accountIds": joinInts(userIDs)})
}

func (c *Client) FetchDeptDescs(ctx context.Context, deptIDs []int) (map[int]string, error) {
	if len(deptIDs) == 0 {
		return map[int]string{}, nil
	}
	return c.fetchDescs(ctx, "department/desr/", map[string]string{"ids": joinInts(deptIDs)})
}

func (c *Client) CheckUserInDepts(ctx context.Context, userID int, deptIDs []int) (bool, error) {
	return c.fetchBool(ctx, fmt.Sprintf("user/%d/checkDept/", userID), map[string]string{"deptIds": joinInts(deptIDs)}, "")
}

func (c *Client) CheckPermissionHasUser(ctx context.Context, permID, userID int) (bool, error) {
	return c.fetchBool(ctx, fmt.Sprintf("perm/%d/hasUser/", permID), map[string]string{"accountId": strconv.Itoa(userID)}, "")
}

func (c *Client) VerifyAccess(ctx context.Context, userToken, path string) (bool, error) {
	return c.fetchBool(ctx, "auth/verify/", map[string]string{"token": userToken, "path": path}, "")
}

func (c *Client) FetchCtiRelations(ctx context.Context, ctiCode int) ([]models.CtiRelate, error) {
	var relations []models.CtiRelate
	if err := c.get(ctx, fmt.Sprintf("cti/%d/relate/", ctiCode), nil, "", &relations); err != nil {
		return []models.CtiRelate{}, err
	}
	return nonNil(relations), nil
}

func (c *Client) SearchUsers(ctx context.Context, keyword, userToken string) ([]models.User, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []models.User{}, nil
	}
	var users []models.User
	path := "user/keyword/" + url.PathEscape(keyword) + "/"
	if err := c.get(ctx, path, nil, userToken, &users); err != nil {
		return []models.User{}, err
	}
	return nonNil(users), nil
}

func (c *Client) pageQuery(index int) map[string]string {
	return map[string]string{
		"index": strconv.Itoa(index),
		"size":  strconv.Itoa(c.pageSize),
	}
}

func (c *Client) fetchIDs(ctx context.Context, path string) ([]int, error) {
	var ids []int
	if err := c.get(ctx, path, nil, "", &ids); err != nil {
		return []int{}, err
	}
	return nonNil(ids), nil
}

// 目录服务返回的 map key 为字符串形式的 ID
func (c *Client) fetchDescs(ctx context.Context, path string, query map[string]string) (map[int]string, error) {
	var raw map[string]string
	if err := c.get(ctx, path, query, "", &raw); err != nil {
		return map[int]string{}, err
	}
	out := make(map[int]string, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			c.logger.Warn("Ignoring non-numeric id in SSO description map", zap.String("path", path), zap.String("key", k))
			continue
		}
		out[id] = v
	}
	return out, nil
}

func (c *Client) fetchBool(ctx context.Context, path string, query map[string]string, userToken string) (bool, error) {
	var ok bool
	if err := c.get(ctx, path, query, userToken, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
