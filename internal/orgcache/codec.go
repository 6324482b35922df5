package orgcache

import (
	"encoding/json"
	"fmt"

	"orgcache/internal/models"
)

func encodeUser(u models.User) (string, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("encode user %d: %w", u.AccountID, err)
	}
	return string(b), nil
}

func decodeUser(raw string) (models.User, error) {
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return u, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}

func encodeUserData(d models.UserData) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode user data %d: %w", d.AccountID, err)
	}
	return string(b), nil
}

func decodeUserData(raw string) (models.UserData, error) {
	var d models.UserData
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, fmt.Errorf("decode user data: %w", err)
	}
	return d, nil
}

// 部门只持久化本部门声明的领导，LeaderDesc 由解析计算
func encodeDepartment(d models.Department) (string, error) {
	d.LeaderDesc = ""
	if d.Leaders == nil {
		d.Leaders = map[int]models.Leader{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode department %d: %w", d.ID, err)
	}
	return string(b), nil
}

func decodeDepartment(raw string) (models.Department, error) {
	var d models.Department
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, fmt.Errorf("decode department: %w", err)
	}
	if d.Leaders == nil {
		d.Leaders = map[int]models.Leader{}
	}
	d.LeaderDesc = ""
	return d, nil
}

// EncodeCtiRelate CTI 绑定关系编码（同步写入与查询共用）
func EncodeCtiRelate(r models.CtiRelate) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode cti relate %s: %w", r.Code, err)
	}
	return string(b), nil
}

// DecodeCtiRelate CTI 绑定关系解码
func DecodeCtiRelate(raw string) (models.CtiRelate, error) {
	var r models.CtiRelate
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return r, fmt.Errorf("decode cti relate: %w", err)
	}
	return r, nil
}
