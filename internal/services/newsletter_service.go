package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/text/language"

	"github.com/lumalingua/api/internal/newsletter"
)

var (
	// ErrNewsletterInvalidInput indicates validation failures for signup requests.
	ErrNewsletterInvalidInput = errors.New("newsletter: invalid input")
	// ErrNewsletterProviderFailure signals the hosted list provider rejected the request.
	ErrNewsletterProviderFailure = errors.New("newsletter: provider failure")
)

// siteLocales lists the supported site locales; the first entry is the
// matcher's fallback for unsupported tags.
var siteLocales = []language.Tag{
	language.Spanish,
	language.English,
	language.German,
	language.French,
	language.Italian,
	language.Portuguese,
	language.Russian,
}

// NewsletterSubscriber forwards a validated subscription to the list provider.
type NewsletterSubscriber interface {
	Subscribe(ctx context.Context, sub newsletter.Subscription) error
}

// NewsletterServiceDeps bundles collaborators required to construct a NewsletterService.
type NewsletterServiceDeps struct {
	Client NewsletterSubscriber
}

type newsletterService struct {
	client  NewsletterSubscriber
	matcher language.Matcher
}

// NewNewsletterService wires dependencies into a concrete NewsletterService implementation.
func NewNewsletterService(deps NewsletterServiceDeps) (NewsletterService, error) {
	if deps.Client == nil {
		return nil, errors.New("newsletter service: provider client is required")
	}
	return &newsletterService{
		client:  deps.Client,
		matcher: language.NewMatcher(siteLocales),
	}, nil
}

func (s *newsletterService) Subscribe(ctx context.Context, cmd SubscribeCommand) error {
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return err
	}

	if err := s.client.Subscribe(ctx, newsletter.Subscription{
		Email:  email,
		Locale: s.normalizeLocale(cmd.Locale),
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrNewsletterProviderFailure, err)
	}
	return nil
}

// normalizeLocale maps any BCP 47 tag onto one of the site locales, falling
// back to Spanish for unsupported or unparseable input.
func (s *newsletterService) normalizeLocale(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return siteLocales[0].String()
	}
	_, index := language.MatchStrings(s.matcher, raw)
	return siteLocales[index].String()
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: email is required", ErrNewsletterInvalidInput)
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", fmt.Errorf("%w: malformed email address", ErrNewsletterInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}
