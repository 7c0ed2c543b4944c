package api

import "voicechat_server/server/chat/domain"

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        domain.User `json:"user"`
}

type updateProfileRequest struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	About     string `json:"about"`
}

type createRoomRequest struct {
	Name      string   `json:"name"`
	IsGroup   bool     `json:"is_group"`
	MemberIDs []string `json:"member_ids" binding:"required"`
}

type createMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func newTokenResponse(token string, user domain.User) tokenResponse {
	return tokenResponse{AccessToken: token, TokenType: "bearer", User: user}
}
