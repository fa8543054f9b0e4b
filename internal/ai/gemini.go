package ai

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "os"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type GeminiClient struct {
    http    *http.Client
    apiKey  string
    baseURL string
}

func NewGeminiClient() *GeminiClient {
    return &GeminiClient{http: &http.Client{}, apiKey: os.Getenv("GEMINI_API_KEY"), baseURL: geminiBaseURL}
}
func (c *GeminiClient) Name() string { return "gemini" }

type geminiPart struct {
    Text string `json:"text"`
}

type geminiContent struct {
    Role  string       `json:"role,omitempty"`
    Parts []geminiPart `json:"parts"`
}

type geminiGenReq struct {
    SystemInstruction *geminiContent `json:"system_instruction,omitempty"`
    Contents          []geminiContent `json:"contents"`
    GenerationConfig  struct {
        Temperature     float64 `json:"temperature"`
        MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
    } `json:"generationConfig"`
}

type geminiGenResp struct {
    Candidates []struct {
        Content      geminiContent `json:"content"`
        FinishReason string        `json:"finishReason"`
    } `json:"candidates"`
    PromptFeedback struct {
        BlockReason string `json:"blockReason"`
    } `json:"promptFeedback"`
    UsageMetadata struct {
        PromptTokenCount     int `json:"promptTokenCount"`
        CandidatesTokenCount int `json:"candidatesTokenCount"`
    } `json:"usageMetadata"`
}

func (c *GeminiClient) Do(ctx context.Context, req Request) (Response, error) {
    if c.apiKey == "" {
        return Response{}, errors.New("missing GEMINI_API_KEY")
    }

    payload := geminiGenReq{
        Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
    }
    if req.System != "" {
        payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
    }
    payload.GenerationConfig.Temperature = 0
    payload.GenerationConfig.MaxOutputTokens = 8192

    body, _ := json.Marshal(payload)
    url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, req.Model)
    httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
    httpReq.Header.Set("x-goog-api-key", c.apiKey)
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := c.http.Do(httpReq)
    if err != nil {
        return Response{}, err
    }
    defer resp.Body.Close()

    if resp.StatusCode == 429 {
        return Response{}, ErrRateLimited
    }
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return Response{}, fmt.Errorf("gemini status %d", resp.StatusCode)
    }

    var r geminiGenResp
    if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
        return Response{}, err
    }
    if r.PromptFeedback.BlockReason != "" {
        return Response{}, ErrContentRefused
    }
    if len(r.Candidates) == 0 {
        return Response{}, errors.New("no candidates")
    }
    cand := r.Candidates[0]
    if cand.FinishReason == "SAFETY" || cand.FinishReason == "PROHIBITED_CONTENT" {
        return Response{}, ErrContentRefused
    }

    text := ""
    for _, p := range cand.Content.Parts {
        text += p.Text
    }
    return Response{
        Text:      text,
        TokensIn:  r.UsageMetadata.PromptTokenCount,
        TokensOut: r.UsageMetadata.CandidatesTokenCount,
    }, nil
}
