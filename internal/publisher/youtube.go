package publisher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"

	"github.com/avataralabs/queuelabs-sub000/internal/retry"
	"github.com/avataralabs/queuelabs-sub000/pkg/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YoutubePublisher uploads straight to the YouTube Data API. The upload call
// returns once the video exists, so results are always synchronous.
type YoutubePublisher struct {
	oauth     *oauth2.Config
	secretKey string
	opts      []option.ClientOption
}

func NewYoutubePublisher(clientID, clientSecret, secretKey string, opts ...option.ClientOption) *YoutubePublisher {
	return &YoutubePublisher{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{youtube.YoutubeUploadScope},
			Endpoint:     google.Endpoint,
		},
		secretKey: secretKey,
		opts:      opts,
	}
}

func (p *YoutubePublisher) Publish(ctx context.Context, req *Request) (*Result, error) {
	if req.RefreshToken == "" {
		return nil, &PublishError{Kind: retry.KindRejected, Err: errors.New("profile has no youtube refresh token")}
	}

	refreshToken, err := utils.Decrypt(req.RefreshToken, []byte(p.secretKey))
	if err != nil {
		return nil, &PublishError{Kind: retry.KindRejected, Err: err}
	}

	client := p.oauth.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, p.opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		slog.Info(err.Error())
		return nil, &PublishError{Kind: retry.KindTransport, Err: err}
	}

	title := req.Title
	if title == "" {
		title = req.Caption
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: req.Description,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	response, err := service.Videos.Insert([]string{"snippet", "status"}, video).
		Context(ctx).
		Media(bytes.NewReader(req.Payload)).
		Do()
	if err != nil {
		slog.Info(err.Error())
		return nil, &PublishError{Kind: Classify(err), Err: err}
	}

	return &Result{ExternalID: response.Id, Message: "https://youtu.be/" + response.Id}, nil
}
