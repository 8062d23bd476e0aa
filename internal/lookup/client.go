// Пакет lookup — клиент directory-сервиса lookup и кэш identity
// пользователей. Клиент аутентифицируется через OAuth2
// client_credentials grant и запрашивает людей по (scheme, identifier).
package lookup

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/assetregister/internal/domain/model"
)

// tokenInfo — закэшированный access token с временем истечения.
type tokenInfo struct {
	accessToken string
	expiresAt   time.Time
}

// Client — HTTP-клиент lookup-сервиса.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	scopes       []string
	logger       *slog.Logger

	// Кэш access token (thread-safe)
	mu    sync.RWMutex
	token *tokenInfo
}

// NewClient создаёт клиент lookup-сервиса.
// baseURL — корень API lookup (например, https://lookup.example.com/api/v1).
// tokenURL — OAuth2 token endpoint для client_credentials grant.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут HTTP-запросов (IAR_LOOKUP_TIMEOUT).
func NewClient(
	baseURL string,
	tokenURL string,
	clientID string,
	clientSecret string,
	scopes []string,
	caCertPath string,
	timeout time.Duration,
	logger *slog.Logger,
) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата lookup: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат lookup добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       scopes,
		logger:       logger.With(slog.String("component", "lookup_client")),
	}, nil
}

// GetPerson запрашивает человека по (scheme, identifier) вместе со всеми
// группами и подразделениями.
// GET {baseURL}/people/{scheme}/{identifier}?fetch=all_insts,all_groups
// Неуспешный статус возвращается как *UpstreamError без повторных попыток.
func (c *Client) GetPerson(ctx context.Context, scheme, identifier string) (*model.Person, error) {
	reqURL := fmt.Sprintf("%s/people/%s/%s?fetch=all_insts,all_groups",
		c.baseURL, url.PathEscape(scheme), url.PathEscape(identifier))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса GetPerson: %w", err)
	}

	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена для lookup: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос GetPerson к %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var person model.Person
	if err := json.NewDecoder(resp.Body).Decode(&person); err != nil {
		return nil, fmt.Errorf("декодирование ответа lookup: %w", err)
	}

	return &person, nil
}

// getToken возвращает access token для авторизации запросов к lookup.
// Использует кэш: если токен ещё валиден (exp - 30s), возвращает закэшированный.
// Иначе запрашивает новый через client_credentials grant.
func (c *Client) getToken(ctx context.Context) (string, error) {
	// Проверяем кэш (read lock)
	c.mu.RLock()
	if c.token != nil && time.Now().Before(c.token.expiresAt) {
		token := c.token.accessToken
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	// Запрашиваем новый токен (write lock)
	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check после получения write lock
	if c.token != nil && time.Now().Before(c.token.expiresAt) {
		return c.token.accessToken, nil
	}

	return c.requestToken(ctx)
}

// requestToken запрашивает новый access token через client_credentials grant.
// Вызывается под write lock.
func (c *Client) requestToken(ctx context.Context) (string, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	if len(c.scopes) > 0 {
		data.Set("scope", strings.Join(c.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("создание запроса token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return "", fmt.Errorf("запрос token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint вернул статус %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		Token     string `json:"access_token"` //nolint:gosec // G117: JSON-маппинг OAuth2 ответа
		ExpiresIn int    `json:"expires_in"`
		TokenType string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("декодирование token response: %w", err)
	}

	if tokenResp.Token == "" {
		return "", fmt.Errorf("пустой access_token в ответе token endpoint")
	}

	// Кэшируем токен (с запасом 30 секунд до истечения)
	c.token = &tokenInfo{
		accessToken: tokenResp.Token,
		expiresAt:   time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - 30*time.Second),
	}

	c.logger.Debug("Access token lookup получен",
		slog.Int("expires_in", tokenResp.ExpiresIn),
	)

	return tokenResp.Token, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
