package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

type sessionInfo struct {
	SessionID    string `json:"session_id"`
	ContainerID  string `json:"container_id"`
	ContainerIP  string `json:"container_ip"`
	State        string `json:"state"`
	CreatedAt    string `json:"created_at"`
	LastUsedAt   string `json:"last_used_at"`
	ErrorMessage string `json:"error_message,omitempty"`
}

func (c *apiClient) createSession() (sessionInfo, error) {
	var info sessionInfo
	resp, err := c.http.Post(c.baseURL+"/v1/sessions", "application/json", nil)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return info, apiErrorFrom(resp)
	}
	return info, json.NewDecoder(resp.Body).Decode(&info)
}

func (c *apiClient) listSessions() ([]sessionInfo, error) {
	resp, err := c.http.Get(c.baseURL + "/v1/sessions")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFrom(resp)
	}
	var sessions []sessionInfo
	return sessions, json.NewDecoder(resp.Body).Decode(&sessions)
}

func (c *apiClient) removeSession(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/v1/sessions/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiErrorFrom(resp)
	}
	return nil
}

// streamExec posts the exec request and invokes onLine for every raw SSE
// "data: " payload as it arrives.
func (c *apiClient) streamExec(id, code, resultVar string, onLine func(string)) error {
	body, err := json.Marshal(map[string]string{"code": code, "result_var": resultVar})
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.baseURL+"/v1/sessions/"+id+"/exec", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiErrorFrom(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			onLine(payload)
		}
	}
	return scanner.Err()
}

func apiErrorFrom(resp *http.Response) error {
	var apiErr struct {
		Code    string `json:"error_code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}
