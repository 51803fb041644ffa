package handlers

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Vietnamese is listed first so it wins when Accept-Language is missing or unmatched.
var supportedLangs = []language.Tag{language.Vietnamese, language.English}

var langMatcher = language.NewMatcher(supportedLangs)

// Message keys double as the English text.
const (
	msgInvalidBody   = "invalid request body"
	msgInvalidID     = "invalid id"
	msgInvalidSince  = "since must be an RFC 3339 timestamp"
	msgValidation    = "request validation failed"
	msgState         = "operation not allowed in the current status"
	msgNotFound      = "resource not found"
	msgConflict      = "the resource was changed concurrently, please retry"
	msgInternal      = "internal error"
	msgForbidden     = "access denied"
	msgUnknownCond   = "unknown release condition"
	msgReleaseDenied = "this role cannot set the condition"

	msgStateDetail    = "%s cannot %s in status %s"
	msgLockedDetail   = "wallet is locked (status %s)"
	msgNotFoundDetail = "%s %s not found"
	msgInventory      = "not enough lot inventory left"

	msgTierSeller = "seller cancellation: %d%% refund"
	msgTierFrom   = "%d or more days before harvest: %d%% refund"
	msgTierLast   = "on or after harvest day: %d%% refund"
)

func init() {
	vi := map[string]string{
		msgInvalidBody:    "dữ liệu yêu cầu không hợp lệ",
		msgInvalidID:      "mã định danh không hợp lệ",
		msgInvalidSince:   "since phải là thời điểm theo định dạng RFC 3339",
		msgValidation:     "dữ liệu không hợp lệ",
		msgState:          "không thể thực hiện thao tác ở trạng thái hiện tại",
		msgNotFound:       "không tìm thấy dữ liệu",
		msgConflict:       "dữ liệu vừa được cập nhật, vui lòng thử lại",
		msgInternal:       "lỗi hệ thống",
		msgForbidden:      "không có quyền truy cập",
		msgUnknownCond:    "điều kiện giải ngân không hợp lệ",
		msgReleaseDenied:  "vai trò này không được đặt điều kiện",
		msgStateDetail:    "%s không thể %s ở trạng thái %s",
		msgLockedDetail:   "ví đã khóa (trạng thái %s)",
		msgNotFoundDetail: "không tìm thấy %s %s",
		msgInventory:      "lô hàng không còn đủ số lượng",
		msgTierSeller:     "người bán hủy đơn: hoàn %d%%",
		msgTierFrom:       "từ %d ngày trước thu hoạch: hoàn %d%%",
		msgTierLast:       "từ ngày thu hoạch trở đi: hoàn %d%%",
	}
	for key, text := range vi {
		_ = message.SetString(language.Vietnamese, key, text)
		_ = message.SetString(language.English, key, key)
	}
	for key, text := range fieldMessages {
		_ = message.SetString(language.Vietnamese, key, text)
		_ = message.SetString(language.English, key, key)
	}
}

// fieldMessages translates the per-field validation messages. Keys are the
// English text or format the services produce.
var fieldMessages = map[string]string{
	"required":                                                 "bắt buộc",
	"must be a uuid":                                           "phải là uuid",
	"must be positive":                                         "phải lớn hơn 0",
	"must not be negative":                                     "không được âm",
	"must be full or partial":                                  "phải là full hoặc partial",
	"must be between 1 and 100":                                "phải từ 1 đến 100",
	"must be in [0, 100)":                                      "phải trong khoảng [0, 100)",
	"must be between 0 and %d":                                 "phải từ 0 đến %d",
	"must be at least %d characters":                           "phải có ít nhất %d ký tự",
	"at least one reason is required":                          "cần ít nhất một lý do",
	"at least one item is required":                            "cần ít nhất một sản phẩm",
	"exceeds available lot quantity":                           "vượt quá số lượng còn lại của lô",
	"required for in-stock items":                              "bắt buộc với hàng có sẵn",
	"not a pre-order line":                                     "không phải dòng đặt trước",
	"not a proposed option of this ticket":                     "không phải phương án đã đề xuất của phiếu này",
	"unknown cancellation reason":                              "lý do hủy không hợp lệ",
	"unknown compensation status":                              "trạng thái bồi thường không hợp lệ",
	"use resolve with a chosen option":                         "hãy dùng resolve với phương án đã chọn",
	"tickets cannot be reopened":                               "không thể mở lại phiếu",
	"propose a resolution option instead":                      "hãy đề xuất phương án giải quyết",
	"partial refund requires a positive amount":                "hoàn một phần cần số tiền lớn hơn 0",
	"min_sold must be >= 0 and unit_price positive":            "min_sold phải >= 0 và unit_price lớn hơn 0",
	"seller_cancel can only be used by the seller or an admin": "chỉ người bán hoặc quản trị viên được dùng seller_cancel",
	"unknown reason %q":                                        "lý do không hợp lệ %q",
	"unknown status %q":                                        "trạng thái không hợp lệ %q",
	"unknown dispute type %q":                                  "loại khiếu nại không hợp lệ %q",
	"unknown resolution type %q":                               "loại phương án không hợp lệ %q",
	"unknown release condition %q":                             "điều kiện giải ngân không hợp lệ %q",
	"unknown trigger %q":                                       "loại kích hoạt không hợp lệ %q",
	"full refund must equal total held":                        "hoàn toàn bộ phải bằng số dư đang giữ",
	"amount must be positive":                                  "số tiền phải lớn hơn 0",
	"amount exceeds total held":                                "số tiền vượt quá số dư đang giữ",
	"wallet holds no funds":                                    "ví không giữ khoản tiền nào",
	"customer is blacklisted":                                  "khách hàng nằm trong danh sách đen",
	"pre-orders are blocked for this customer":                 "khách hàng bị chặn đặt trước",
	"full deposit required":                                    "yêu cầu đặt cọc toàn bộ",
}

// requestLang picks the response language from Accept-Language.
func requestLang(c *fiber.Ctx) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(c.Get(fiber.HeaderAcceptLanguage))
	if err != nil || len(tags) == 0 {
		return supportedLangs[0]
	}
	_, idx, conf := langMatcher.Match(tags...)
	if conf == language.No {
		return supportedLangs[0]
	}
	return supportedLangs[idx]
}

func printer(c *fiber.Ctx) *message.Printer {
	return message.NewPrinter(requestLang(c))
}
