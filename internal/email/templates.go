package email

import (
	"fmt"
	"html"
)

// ChallengeSubject returns the subject line for a verification code email
func ChallengeSubject(appName string) string {
	return fmt.Sprintf("Your %s security code", appName)
}

// ChallengeHTML returns the HTML body for a verification code email.
func ChallengeHTML(code, appName string, ttlMinutes int) string {
	app := html.EscapeString(appName)
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Security check</title></head>
<body style="margin:0;padding:40px 0;font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;background-color:#f4f5f7;">
<table width="480" align="center" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;">
  <tr><td style="padding:32px 40px 16px;text-align:center;">
    <h1 style="margin:0;font-size:22px;color:#1a1a2e;">Confirm it's you</h1>
  </td></tr>
  <tr><td style="padding:0 40px 16px;font-size:15px;color:#4a4a68;line-height:1.6;">
    We noticed unusual activity in your <strong>%s</strong> session. Enter this code to continue.
  </td></tr>
  <tr><td style="padding:0 40px 24px;text-align:center;">
    <span style="font-family:'Courier New',monospace;font-size:34px;font-weight:bold;letter-spacing:8px;color:#1a1a2e;">%s</span>
  </td></tr>
  <tr><td style="padding:0 40px 32px;font-size:13px;color:#8888a0;">
    The code expires in <strong>%d minutes</strong>. If this wasn't you, close the page and change your password.
  </td></tr>
</table>
</body>
</html>`, app, html.EscapeString(code), ttlMinutes)
}

// ChallengeText returns the plain-text body for a verification code email.
func ChallengeText(code, appName string, ttlMinutes int) string {
	return fmt.Sprintf(`Confirm it's you

We noticed unusual activity in your %s session. Enter this code to continue:

%s

The code expires in %d minutes. If this wasn't you, close the page and change your password.`, appName, code, ttlMinutes)
}
